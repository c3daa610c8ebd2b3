package worker

import "strings"

type classifierRule struct {
	workerType string
	keywords   []string
}

// classifierRules map task keywords to worker types, checked in order.
var classifierRules = []classifierRule{
	{TypeTransport, []string{"train", "flight", "airfare", "rail", "12306", "火车", "高铁", "动车", "航班", "机票", "车票"}},
	{TypeHotel, []string{"hotel", "hostel", "lodging", "accommodation", "酒店", "住宿", "民宿", "宾馆"}},
	{TypeWeather, []string{"weather", "forecast", "temperature", "天气", "气温", "预报"}},
	{TypeMap, []string{"route", "distance", "nearby", "navigation", "map", "路线", "距离", "周边", "导航", "地图"}},
	{TypeFile, []string{"file", "save", "write", "read", "文件", "保存", "写入", "读取"}},
	{TypeSearch, []string{"search", "attraction", "restaurant", "food", "review", "guide", "景点", "美食", "攻略", "餐厅", "评价"}},
}

// Classify returns the worker type whose keywords appear in task, or "" when
// nothing matches.
func Classify(task string) string {
	lower := strings.ToLower(task)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.workerType
			}
		}
	}
	return ""
}
