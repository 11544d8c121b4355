package sftp

const (
	DefaultConcurrentFiles = 5
	DefaultThreadsPerFile  = 16
	DefaultChunkSize       = 32 * 1024
)

// TransferConfig 定义传输配置
type TransferConfig struct {
	ConcurrentFiles int   // 同时传输的文件数
	ThreadsPerFile  int   // 单个文件的并发分块数
	ChunkSize       int64 // 分块大小
	// Exclude 按名称跳过的文件或目录, 例如 .git
	Exclude []string
}

func DefaultConfig() TransferConfig {
	return TransferConfig{
		ConcurrentFiles: DefaultConcurrentFiles,
		ThreadsPerFile:  DefaultThreadsPerFile,
		ChunkSize:       DefaultChunkSize,
	}
}

// ProgressCallback 进度回调, n 为本次增量传输的字节数; 必须是并发安全的
type ProgressCallback func(n int)
