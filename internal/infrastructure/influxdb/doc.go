// Package influxdb records battery levels as a time series.
//
// It is optional: with influxdb.enabled false Connect returns ErrDisabled and
// nothing is written. When enabled, every merged snapshot writes one
// battery_level point per device with a known charge, and every device event
// writes a device_event point, so long-term drain curves can be graphed
// outside the tray.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteBatteryLevel(influxdb.BatteryLevel{Identity: "AA:BB", Name: "Mouse", Percent: 42}, now)
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Asynchronous write failures are reported through SetOnError.
package influxdb
