package volumes

import (
	"context"
	"sync"

	"github.com/pilebones/go-udev/netlink"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Monitor refreshes the identifier whenever a block device appears,
// disappears or changes, then calls onChange.
type Monitor struct {
	identifier *Identifier
	onChange   func(ctx context.Context)

	mu   sync.Mutex
	conn *netlink.UEventConn
	quit chan struct{}
	done chan struct{}
}

func NewMonitor(identifier *Identifier, onChange func(ctx context.Context)) *Monitor {
	return &Monitor{identifier: identifier, onChange: onChange}
}

// Start connects to the kernel uevent socket and handles events in the
// background until Stop is called or ctx ends.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return errors.Wrap(err, "failed to connect to netlink socket")
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(ctx, conn, m.quit, m.done)

	logger.FromContext(ctx).Info("device monitor started")
	return nil
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return
	}
	close(m.quit)
	<-m.done
	_ = m.conn.Close()
	m.conn = nil
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := logger.FromContext(ctx)

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, blockDeviceMatcher())
	defer close(monitorQuit)

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case uevent := <-queue:
			log.Info("block device event", logger.Data{
				"action":  string(uevent.Action),
				"devname": uevent.Env["DEVNAME"],
			})
			if err := m.identifier.Refresh(ctx); err != nil {
				log.Err(err).Warn("volume refresh after device event failed")
				continue
			}
			if m.onChange != nil {
				m.onChange(ctx)
			}
		case err := <-errs:
			log.Err(err).Warn("device monitor error")
		}
	}
}

func blockDeviceMatcher() netlink.Matcher {
	action := "add|remove|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition|disk",
		},
	})
	return rules
}
