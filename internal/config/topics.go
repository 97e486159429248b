package config

const (
	// TopicIndexTask carries chapters queued for asynchronous indexing.
	TopicIndexTask = "index.task"

	// ChannelIndexWorker is the consumer channel of the index worker.
	ChannelIndexWorker = "index-worker"
)
