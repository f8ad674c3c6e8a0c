package storage

// ParseRunQueuedMessage 解析任务入队消息体。
// 消息只携带标识，消费端以数据库中的运行记录为准，
// 重复投递时可安全跳过已终态的运行。
type ParseRunQueuedMessage struct {
	RunID      string `json:"run_id"`
	DocumentID string `json:"document_id"`
}
