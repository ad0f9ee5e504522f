package pebblestore

const (
	taskPrefix    = "task/"
	archivePrefix = "archive/"
	userPrefix    = "user/"
)

func taskKey(id string) []byte {
	return []byte(taskPrefix + id)
}

func archiveKey(id string) []byte {
	return []byte(archivePrefix + id)
}

func userKey(username string) []byte {
	return []byte(userPrefix + username)
}
