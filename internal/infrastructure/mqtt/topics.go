package mqtt

import "strconv"

// topicPrefix roots every topic the monitor publishes.
const topicPrefix = "winmon"

// DeviceStateTopic is the retained per-device state topic.
func DeviceStateTopic(deviceID int) string {
	return topicPrefix + "/state/" + strconv.Itoa(deviceID)
}

// SystemStatusTopic carries the monitor's online/offline status,
// including the Last Will message.
func SystemStatusTopic() string {
	return topicPrefix + "/system/status"
}
