package catalog

// Default returns the built-in seed catalog used when no keyword file exists.
func Default() Categories {
	return Categories{
		{Name: CategoryGambling, Keywords: []string{
			"赌博", "博彩", "百家乐", "德州扑克", "老虎机",
			"充值", "提现", "返水", "洗码", "上分", "下分",
			"AG亚游", "BBIN", "沙巴", "皇冠", "永利",
			"一夜暴富", "稳赚不赔", "日赚千元", "网投", "网赌",
		}},
		{Name: CategoryAdult, Keywords: []string{
			"约炮", "援交", "包养", "小姐", "嫖娼",
			"黄色", "成人", "情色", "三级", "av",
			"性服务", "上门服务", "特殊服务",
			"一夜情", "找乐子", "寂寞",
		}},
		{Name: CategoryCrypto, Keywords: []string{
			"空投领取", "USDT返利", "拉盘", "带单", "合约喊单", "私募币",
			"free bitcoin", "crypto giveaway", "double your btc",
		}},
		{Name: CategoryCustom, Keywords: []string{}},
	}
}
