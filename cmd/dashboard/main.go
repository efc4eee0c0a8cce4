package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"medportal/client"
	"medportal/client/session"
	"medportal/client/swr"
	"medportal/internal/config"
	"medportal/internal/metrics"
	"medportal/internal/repository"
	v1 "medportal/pkg/api/v1"
	"medportal/pkg/constraints"
	"medportal/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	email    = flag.String("email", "", "Login email, used when no session is stored")
	password = flag.String("password", "", "Login password")
	logout   = flag.Bool("logout", false, "Close the stored session and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("dashboard failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The session survives restarts when the redis backend is selected.
	kv, closeKV, err := repository.Open(ctx, cfg.Session.Backend, &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Session.KeyPrefix)
	if err != nil {
		return err
	}
	defer closeKV()

	observer := metrics.NewPrometheusObserver()
	store := session.NewStore(kv)
	api, err := client.New(cfg.API.BaseURL, store, client.WithObserver(observer))
	if err != nil {
		return err
	}

	if *logout {
		return api.Logout(ctx)
	}

	tokens, err := store.Get(ctx)
	if err != nil {
		return err
	}
	if tokens == nil {
		if *email == "" {
			return errors.New("no stored session: pass -email and -password")
		}
		if tokens, err = api.Login(ctx, *email, *password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	cache := swr.NewCache(swr.WithObserver(observer))
	defer cache.Close()

	// Cached views are meaningless once the session is gone.
	unsubscribe := store.Subscribe(func(t *session.Tokens) {
		if t == nil {
			cache.Clear()
			fmt.Println("session closed, log in again")
			stop()
		}
	})
	defer unsubscribe()

	opts := []swr.Option{
		swr.WithRefreshInterval(cfg.Cache.RefreshInterval),
		swr.WithRevalidateOnFocus(cfg.Cache.RevalidateOnFocus),
	}

	// Stats are admin only: other roles get an inert query.
	statsKey := ""
	if tokens.Role == constraints.RoleAdmin {
		statsKey = client.KeyStats
	}

	var (
		drawMu sync.Mutex
		v      views
	)
	render := func() {
		drawMu.Lock()
		defer drawMu.Unlock()
		if v.me == nil {
			return
		}
		draw(v.me.Snapshot(), v.appointments.Snapshot(), v.stats.Snapshot())
	}

	// Listen before the first loads start so that none of them goes unseen.
	for _, key := range []string{client.KeyMe, client.KeyAppointments, statsKey} {
		if key == "" {
			continue
		}
		defer cache.Subscribe(key, func(swr.State) { render() })()
	}

	drawMu.Lock()
	v = views{
		me:           swr.Use(cache, client.KeyMe, api.Me, opts...),
		appointments: swr.Use(cache, client.KeyAppointments, api.ListAppointments, opts...),
		stats:        swr.Use(cache, statsKey, api.Stats, opts...),
	}
	drawMu.Unlock()
	defer v.close()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	fmt.Println("Enter: revalidate | r: reload appointments | q: quit")
	render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "":
				cache.Focus()
			case "r":
				reloadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := v.appointments.Reload(reloadCtx); err != nil {
					fmt.Printf("reload failed: %v\n", err)
				}
				cancel()
			case "q":
				return nil
			}
		}
	}
}

type views struct {
	me           *swr.Query[*v1.User]
	appointments *swr.Query[[]v1.Appointment]
	stats        *swr.Query[*v1.Stats]
}

func (v views) close() {
	v.me.Close()
	v.appointments.Close()
	v.stats.Close()
}

func draw(me swr.Snapshot[*v1.User], appts swr.Snapshot[[]v1.Appointment], stats swr.Snapshot[*v1.Stats]) {
	var b strings.Builder
	b.WriteString("\n==== MedPortal ====\n")
	switch {
	case me.HasData && me.Data != nil:
		fmt.Fprintf(&b, "%s %s <%s> [%s]\n", me.Data.FirstName, me.Data.LastName, me.Data.Email, me.Data.Role)
	case me.IsLoading:
		b.WriteString("loading profile...\n")
	}

	fmt.Fprintf(&b, "-- Appointments%s\n", status(appts.IsLoading, appts.Err))
	if appts.HasData {
		if len(appts.Data) == 0 {
			b.WriteString("   none\n")
		}
		for _, a := range appts.Data {
			fmt.Fprintf(&b, "   %s  %s -> %s  %s\n", a.Start.Local().Format("02/01 15:04"),
				a.DoctorID, a.PatientID, a.Status)
		}
	}

	if stats.HasData && stats.Data != nil {
		s := stats.Data
		fmt.Fprintf(&b, "-- Stats%s\n   users %d (doctors %d, patients %d) | appointments %d (upcoming %d) | prescriptions %d\n",
			status(stats.IsLoading, stats.Err), s.Users, s.Doctors, s.Patients, s.Appointments, s.UpcomingAppointments, s.Prescriptions)
	}
	fmt.Print(b.String())
}

func status(loading bool, err error) string {
	switch {
	case err != nil:
		return " (stale: " + err.Error() + ")"
	case loading:
		return " (refreshing)"
	}
	return ""
}
