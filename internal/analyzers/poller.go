package analyzers

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"go.uber.org/zap"
)

// ValueSink bekommt jeden geänderten Registerwert gemeldet. Der Websocket
// Hub und die WatchRegistry hängen hier dran.
type ValueSink func(key types.WatchKey, value float64)

type Poller struct {
	device   *Device
	interval time.Duration
	sink     ValueSink
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewPoller(device *Device, interval time.Duration, sink ValueSink, logger *zap.Logger) *Poller {
	return &Poller{
		device:   device,
		interval: interval,
		sink:     sink,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start startet das zyklische Polling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.String("analyzer", p.device.Analyzer.Name),
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stoppt das Polling
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped", zap.String("analyzer", p.device.Analyzer.Name))
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.pollAnalyzer()
		}
	}
}

func (p *Poller) pollAnalyzer() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval/2)
	defer cancel()

	analyzerID := p.device.Analyzer.ID.String()

	for _, reg := range p.device.Profile.Registers {
		if reg.DataType == types.DataTypeString {
			continue
		}

		previous, hadPrevious := p.device.LastValue(reg.Name)

		value, err := p.device.ReadRegister(ctx, reg.Name)
		if err != nil {
			p.logger.Error("Poll failed",
				zap.String("analyzer", p.device.Analyzer.Name),
				zap.String("register", reg.Name),
				zap.Error(err))
			continue
		}

		// Nur Änderungen weiterreichen
		if p.sink != nil && (!hadPrevious || value != previous) {
			p.sink(types.NewWatchKey(analyzerID, reg.RegisterDescriptor), value)
		}
	}
}

// IsRunning gibt an ob Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
