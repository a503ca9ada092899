// Package mqtt publishes monitor state to an MQTT broker.
//
// The relay is optional: when enabled, every device state change is
// published retained to a per-device topic, and the monitor's own
// online/offline status is kept on a system topic with a Last Will
// message covering unexpected exits. The package only publishes;
// winmond accepts no commands over MQTT.
package mqtt
