package repositories

// MessageKey identifies a received message across the tables that reference it
type MessageKey struct {
	PlatformID        string
	ProviderMessageID string
}

// PlatformUserKey identifies a user on one configured platform
type PlatformUserKey struct {
	PlatformID     string
	ProviderUserID string
}

func splitMessageKeys(keys []MessageKey) (platformIDs, messageIDs []string) {
	platformIDs = make([]string, 0, len(keys))
	messageIDs = make([]string, 0, len(keys))
	for _, k := range keys {
		platformIDs = append(platformIDs, k.PlatformID)
		messageIDs = append(messageIDs, k.ProviderMessageID)
	}
	return platformIDs, messageIDs
}

func splitPlatformUserKeys(keys []PlatformUserKey) (platformIDs, userIDs []string) {
	platformIDs = make([]string, 0, len(keys))
	userIDs = make([]string, 0, len(keys))
	for _, k := range keys {
		platformIDs = append(platformIDs, k.PlatformID)
		userIDs = append(userIDs, k.ProviderUserID)
	}
	return platformIDs, userIDs
}
