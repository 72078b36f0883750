// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: свип истёкших столов и
// периодическое обновление балансовой ведомости.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Scheduler управляет фоновыми задачами. Конкретная работа инжектится
// функциями, чтобы jobs не тянул зависимости фич.
type Scheduler struct {
	cron         *cron.Cron
	expireFunc   func(ctx context.Context)
	refreshFunc  func(ctx context.Context) error
	sheetEnabled bool
}

// NewScheduler создаёт планировщик задач в часовом поясе приложения.
func NewScheduler(timezone string, expireFunc func(ctx context.Context), refreshFunc func(ctx context.Context) error, sheetEnabled bool) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.WithError(err).WithField("timezone", timezone).Warn("Не удалось загрузить часовой пояс, используем IST (UTC+5:30)")
		loc = time.FixedZone("IST", 5*3600+30*60)
	}

	c := cron.New(cron.WithLocation(loc))

	return &Scheduler{
		cron:         c,
		expireFunc:   expireFunc,
		refreshFunc:  refreshFunc,
		sheetEnabled: sheetEnabled,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Свип истёкших столов каждые 5 минут
	s.cron.AddFunc("*/5 * * * *", func() {
		log.Debug("[CRON] Свип истёкших столов")
		s.expireFunc(ctx)
	})

	// Обновление закреплённой ведомости каждые полчаса
	if s.sheetEnabled {
		s.cron.AddFunc("*/30 * * * *", func() {
			log.Debug("[CRON] Обновление балансовой ведомости")
			if err := s.refreshFunc(ctx); err != nil {
				log.WithError(err).Error("[CRON] Ошибка обновления ведомости")
			}
		})
	}

	s.cron.Start()
	log.Info("Планировщик задач запущен")
}

// Stop останавливает планировщик.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
