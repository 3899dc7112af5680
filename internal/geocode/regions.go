package geocode

var provinceCodes = map[string]string{
	"北京市": "110000", "天津市": "120000", "河北省": "130000", "山西省": "140000",
	"内蒙古自治区": "150000", "辽宁省": "210000", "吉林省": "220000", "黑龙江省": "230000",
	"上海市": "310000", "江苏省": "320000", "浙江省": "330000", "安徽省": "340000",
	"福建省": "350000", "江西省": "360000", "山东省": "370000", "河南省": "410000",
	"湖北省": "420000", "湖南省": "430000", "广东省": "440000", "广西壮族自治区": "450000",
	"海南省": "460000", "重庆市": "500000", "四川省": "510000", "贵州省": "520000",
	"云南省": "530000", "西藏自治区": "540000", "陕西省": "610000", "甘肃省": "620000",
	"青海省": "630000", "宁夏回族自治区": "640000", "新疆维吾尔自治区": "650000",
}

var provinceShorts = map[string]string{
	"北京市": "京", "天津市": "津", "河北省": "冀", "山西省": "晋",
	"内蒙古自治区": "蒙", "辽宁省": "辽", "吉林省": "吉", "黑龙江省": "黑",
	"上海市": "沪", "江苏省": "苏", "浙江省": "浙", "安徽省": "皖",
	"福建省": "闽", "江西省": "赣", "山东省": "鲁", "河南省": "豫",
	"湖北省": "鄂", "湖南省": "湘", "广东省": "粤", "广西壮族自治区": "桂",
	"海南省": "琼", "重庆市": "渝", "四川省": "川", "贵州省": "黔",
	"云南省": "滇", "西藏自治区": "藏", "陕西省": "陕", "甘肃省": "甘",
	"青海省": "青", "宁夏回族自治区": "宁", "新疆维吾尔自治区": "新",
}

// ProvinceCode returns the administrative code for a full province name, or
// "" when unknown.
func ProvinceCode(province string) string { return provinceCodes[province] }

// ProvinceShort returns the one character abbreviation, or "" when unknown.
func ProvinceShort(province string) string { return provinceShorts[province] }
