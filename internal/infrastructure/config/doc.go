// Package config loads the agent configuration.
//
// A YAML file is decoded over built-in defaults, TPAGENT_* environment
// variables are applied on top, and the result is validated. Watch reloads
// the file on edits so broker and platform settings can change without a
// restart.
//
// Keep the device token out of the file where possible and supply it as
// TPAGENT_PLATFORM_DEVICE_TOKEN instead.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	topic, _ := message.ControlDownTopic(cfg.Platform.ServiceName, cfg.Platform.DeviceName)
package config
