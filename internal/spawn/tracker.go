package spawn

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rkotelov/dexy-api/internal/config"
)

// cycle представляет один цикл накопления активности на сервере
type cycle struct {
	count     int
	threshold int       // Случайный порог, выбирается один раз за цикл
	startedAt time.Time
	lastEvent time.Time
}

// Tracker превращает поток событий активности в сигналы спавна.
// На каждый сервер ведется счетчик с случайным порогом; события чаще
// троттлинг-интервала не учитываются, а срабатывание возможно только
// после минимального времени цикла. После срабатывания цикл начинается
// заново с новым порогом
type Tracker struct {
	mu     sync.Mutex
	cfg    config.SpawnConfig
	guilds map[string]*cycle
}

// NewTracker создает новый экземпляр Tracker
func NewTracker(cfg config.SpawnConfig) *Tracker {
	return &Tracker{
		cfg:    cfg,
		guilds: make(map[string]*cycle),
	}
}

// Activity учитывает одно событие активности и сообщает,
// пора ли спавнить шар на этом сервере
func (t *Tracker) Activity(guildID string) bool {
	return t.activityAt(guildID, time.Now())
}

func (t *Tracker) activityAt(guildID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.guilds[guildID]
	if !ok {
		c = t.newCycle(now)
		t.guilds[guildID] = c
		c.count++
		c.lastEvent = now
		return false
	}

	// Слишком частые события не учитываются
	if now.Sub(c.lastEvent) < t.cfg.Throttle {
		return false
	}

	c.count++
	c.lastEvent = now

	if c.count <= c.threshold {
		return false
	}
	if now.Sub(c.startedAt) < t.cfg.MinElapsed {
		return false
	}

	// Срабатывание ровно один раз: цикл сбрасывается сразу же
	t.guilds[guildID] = t.newCycle(now)
	return true
}

// newCycle начинает новый цикл со свежим случайным порогом
func (t *Tracker) newCycle(now time.Time) *cycle {
	threshold := t.cfg.ThresholdMin
	if t.cfg.ThresholdMax > t.cfg.ThresholdMin {
		threshold += rand.IntN(t.cfg.ThresholdMax - t.cfg.ThresholdMin + 1)
	}
	return &cycle{
		threshold: threshold,
		startedAt: now,
		// lastEvent нулевой: первое событие нового цикла не троттлится
	}
}
