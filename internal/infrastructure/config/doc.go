// Package config loads the TP-Link bridge's YAML configuration.
//
// Values come from three layers, later ones winning: built-in defaults, the
// YAML file, then GRAYLOGIC_TPLINK_* environment variables. Validate reports
// every problem in one error so an installer can fix the file in one pass.
//
// Keep broker passwords and InfluxDB tokens out of the file and supply them
// through the environment instead.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, addr := range cfg.TPLink.PowerStrips {
//	    fmt.Println("strip at", addr)
//	}
package config
