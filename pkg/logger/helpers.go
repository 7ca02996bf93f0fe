package logger

// LogDownload logs the outcome of a single asset download
func LogDownload(username, postID string, index int, outcome string, err error) {
	fields := map[string]interface{}{
		"username": username,
		"post_id":  postID,
		"index":    index,
		"outcome":  outcome,
	}

	logger := GetLogger().WithFields(fields)

	if err != nil {
		logger.WithError(err).Error("Download failed")
	} else {
		logger.Info("Download finished")
	}
}

// LogScan logs the result of a timeline scan
func LogScan(username string, found, pinned int) {
	GetLogger().WithFields(map[string]interface{}{
		"username": username,
		"found":    found,
		"pinned":   pinned,
	}).Info("Timeline scanned")
}

// LogRateLimit logs rate limiting events
func LogRateLimit(resource string, retryAfter int) {
	GetLogger().WithFields(map[string]interface{}{
		"resource":    resource,
		"retry_after": retryAfter,
		"action":      "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	logger := GetLogger().WithField("component", component)

	if len(config) > 0 {
		logger = logger.WithFields(config)
	}

	logger.Info("Component started")
}
