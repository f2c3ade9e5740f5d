// Package mqtt provides MQTT client connectivity for the TP-Link bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) so consumers see the bridge go offline
//
// The bridge talks to the rest of Gray Logic over the broker only:
//
//	Gray Logic Core ↔ MQTT Broker ↔ TP-Link bridge ↔ plugs and strips
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, "tplink")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("tplink"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(topic, payload)
//	    })
//
// Unit tests run without a broker. Tests tagged "integration" expect
// Mosquitto at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...
package mqtt
