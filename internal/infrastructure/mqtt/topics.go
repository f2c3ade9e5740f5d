package mqtt

import "fmt"

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{id}.
const TopicPrefix = "graylogic"

// Topics provides builders for bridge MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("tplink", "AABBCCDDEEFF01")
//	// Returns: "graylogic/state/tplink/AABBCCDDEEFF01"
type Topics struct{}

// BridgeState returns the topic for device state updates from a bridge.
//
// Example: graylogic/state/tplink/AABBCCDDEEFF01
func (Topics) BridgeState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeCommand returns the topic for commands to a bridge device.
//
// Example: graylogic/command/tplink/AABBCCDDEEFF01
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeAck returns the topic for command acknowledgements.
//
// Example: graylogic/ack/tplink/AABBCCDDEEFF01
func (Topics) BridgeAck(protocol, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, deviceID)
}

// BridgeRequest returns the topic for requests to a bridge.
//
// Example: graylogic/request/tplink/req-abc123
func (Topics) BridgeRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, protocol, requestID)
}

// BridgeResponse returns the topic for request responses.
//
// Example: graylogic/response/tplink/req-abc123
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, protocol, requestID)
}

// BridgeHealth returns the retained bridge health topic.
//
// Example: graylogic/health/tplink
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeDiscovery returns the topic newly materialized endpoints are announced on.
//
// Example: graylogic/discovery/tplink
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, protocol)
}

// BridgeCommands returns a pattern matching every command for one bridge.
//
// Pattern: graylogic/command/tplink/#
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/#", TopicPrefix, protocol)
}

// BridgeRequests returns a pattern matching every request for one bridge.
//
// Pattern: graylogic/request/tplink/#
func (Topics) BridgeRequests(protocol string) string {
	return fmt.Sprintf("%s/request/%s/#", TopicPrefix, protocol)
}
