// Package mqtt connects the shading service to the building's MQTT broker.
//
// Inbound, each blind listens on its set topics; outbound, the service
// publishes blind commands and a retained status per blind:
//
//	sensors / switches ──► {prefix}/{blind}/set[/{keyword}] ──► shading
//	shading ──► {prefix}/{blind}/command  ──► actuator bridge
//	shading ──► {prefix}/{blind}/status   (retained)
//	broker  ──► graylogic/system/status   (LWT, retained)
//
// # Key Types
//
//   - Client: connection, publish, subscribe, reconnect handling
//   - Topics: topic builders and set-topic parsing for one prefix
//
// # Thread Safety
//
// Client is safe for concurrent use. Subscriptions are restored after a
// reconnect. Ordered delivery is enabled, so handlers run one at a time
// and must not block.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.Shading.TopicPrefix)
//	err = client.Subscribe(topics.AllSets(), 1, func(topic string, payload []byte) error {
//	    blind, keyword, _ := topics.ParseSet(topic)
//	    ...
//	})
package mqtt
