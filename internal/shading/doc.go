// Package shading runs the blind controllers and connects them to the outside.
//
// Each configured blind gets a Node: a bounded event queue drained by one
// goroutine that feeds blind.Controller.Process. The Manager owns the nodes and
// the collaborators they share (site ephemeris, context store, resolvers) and
// routes inputs to them:
//
//	graylogic/shading/{blind}/set[/{keyword}]  --HandleSet-->  Node queue
//	REST API                                   --Submit---->  Node queue (waits)
//	GPIO wall button                           --Press----->  Node queue
//	override expiry timer                      --TimerEnqueue-> Node queue
//
// Results leave through Sinks, delivered on the node goroutine in event order:
//
//   - MQTTSink: command topic and retained status topic
//   - HubSink: WebSocket push on the "blind.decision" channel
//   - InfluxSink: one time-series point per decision
//   - JournalSink: the SQLite decision journal
//   - MetricsSink: Prometheus counters and gauges
//
// # Thread Safety
//
// MQTT handlers only decode and enqueue; with ordered delivery they run on
// the client's router goroutine and must not block. A full queue drops the
// event with ErrQueueFull. Expiry events are never dropped: TimerEnqueue waits
// for room.
//
// # Usage
//
//	mgr, err := shading.NewManager(shading.Options{
//	    Shading: cfg.Shading,
//	    Site:    cfg.Site,
//	    Blinds:  blinds,
//	    Sink:    shading.Sinks{shading.NewMQTTSink(client, topics, 1, log)},
//	    Logger:  log,
//	})
//	mgr.Start(ctx)
//	defer mgr.Stop()
//	err = mgr.Subscribe(client, 1)
package shading
