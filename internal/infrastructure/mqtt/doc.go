// Package mqtt republishes BlueGauge state to an MQTT broker.
//
// It is optional: with mqtt.enabled false nothing here is constructed.
// When enabled, every device snapshot, device event and delivered
// notification is mirrored under the bluegauge/ topic tree, and a message on
// bluegauge/command/refresh triggers an immediate poll.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.CommandRefresh(), 1,
//	    func(topic string, payload []byte) error {
//	        sched.Refresh()
//	        return nil
//	    })
//
// The retained bluegauge/system/status topic doubles as the last will, so
// subscribers can tell a crash from a clean shutdown.
package mqtt
