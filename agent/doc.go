// Package agent provides the public contract for building analysis agents
// with finsight.
//
// This package exports the Agent contract, the Descriptor metadata, the
// Request/Result/Signal data model, and the message Bus that external
// projects need to implement custom agents or drive the engine.
//
// # Implementing an agent
//
// An agent implements four methods; the engine handles scheduling,
// timeouts, retries, and failure isolation:
//
//	type PriceWatcher struct{ threshold float64 }
//
//	func (w *PriceWatcher) Initialize(ctx context.Context, desc agent.Descriptor) error {
//	    w.threshold, _ = desc.Params["threshold"].(float64)
//	    return nil
//	}
//
//	func (w *PriceWatcher) Process(ctx context.Context, subject string,
//	    upstream map[string]*agent.Result, params map[string]any) (*agent.Result, error) {
//	    res := agent.NewResult("price_watcher", subject)
//	    res.AddSignal(agent.SignalInfo, 0.9, 0, "price inside watch band")
//	    return res, nil
//	}
//
//	func (w *PriceWatcher) Shutdown(ctx context.Context) error { return nil }
//
//	func (w *PriceWatcher) Describe() agent.Descriptor {
//	    return agent.Descriptor{Name: "price_watcher", Enabled: true}
//	}
//
// # Messages
//
// Participants exchange supplementary data and lifecycle events over the
// Bus. Point-to-point sends are backpressured; broadcasts are best-effort:
//
//	b := agent.NewBus(agent.BusConfig{})
//	b.Register("price_watcher")
//	sub, _ := b.SubscribeKind("price_watcher", "data.collected")
//	_ = b.Publish(ctx, agent.NewBroadcast("data.collected", "data_collector", snapshot))
//	msg := <-sub.C()
package agent
