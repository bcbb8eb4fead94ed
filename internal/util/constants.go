package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

const ContextUserKey = "user"
