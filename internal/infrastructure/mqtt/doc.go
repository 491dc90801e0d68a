// Package mqtt connects the store to an MQTT broker.
//
// The store publishes one non-retained message per committed change on
// {prefix}/snapshot/{family}/{action}, and a retained status on
// {prefix}/system/status that names the open database and its schema
// version. Overlays, sync helpers and the entstore watch command follow
// changes made by another process without polling the database file.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Announce(mqtt.StoreInfo{Path: st.Path(), SchemaVersion: st.SchemaVersion()})
//	client.PublishChange("vehicle", "save", payload)
//
//	client.WatchChanges(func(family, action string, payload []byte) error {
//	    fmt.Println(family, action, string(payload))
//	    return nil
//	})
//
// If the process dies without Close the broker publishes the offline status
// configured as the connection's last will.
package mqtt
