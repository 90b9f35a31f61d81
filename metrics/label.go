package metrics

// Label 指标标签，为指标添加维度信息
//
// 标签命名使用小写字母和下划线，标签值应避免高基数
// （如请求 ID）；熔断器/限流器的 key 基数可控，适合作为标签。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数
//
//	counter.Inc(ctx, metrics.L("key", "payment"), metrics.L("state", "open"))
func L(key, value string) Label {
	return Label{
		Key:   key,
		Value: value,
	}
}
