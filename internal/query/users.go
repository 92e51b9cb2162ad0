package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// UserSummary rolls up what a case knows about one user
type UserSummary struct {
	Username      string     `json:"username"`
	UID           *int64     `json:"uid"`
	Shell         *string    `json:"shell"`
	HomeDirectory *string    `json:"home_directory"`
	ProcessCount  int64      `json:"process_count"`
	AuthEvents    int64      `json:"auth_events"`
	AuthFailures  int64      `json:"auth_failures"`
	LastAuthEvent *time.Time `json:"last_auth_event"`
}

// UserActivity joins user accounts with process ownership and authentication
// events, covering users seen in any of the three categories.
func UserActivity(ctx context.Context, db *gorm.DB, c *models.Case) ([]UserSummary, error) {
	if _, err := resolve(c, string(catalog.UserAccounts)); err != nil {
		return nil, err
	}

	var (
		accounts []struct {
			Username      string
			UID           *int64
			Shell         *string
			HomeDirectory *string
		}
		procs []struct {
			UserName string
			N        int64
		}
		auth []struct {
			Username string
			Events   int64
			Failures int64
			Last     *string
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	q := func(category catalog.Category) *gorm.DB {
		return silent(db).WithContext(gctx).Table(database.TableName(db, c.Namespace, category))
	}
	quote := func(name string) string { return database.Quote(db, name) }

	g.Go(func() error {
		err := q(catalog.UserAccounts).
			Select(quote("username") + " AS username, " + quote("uid") + " AS uid, " +
				quote("shell") + " AS shell, " + quote("home_directory") + " AS home_directory").
			Scan(&accounts).Error
		if err != nil {
			return readError(err, c, string(catalog.UserAccounts))
		}
		return nil
	})
	g.Go(func() error {
		err := q(catalog.Processes).
			Select(quote("user_name") + " AS user_name, COUNT(*) AS n").
			Where(quote("user_name") + " IS NOT NULL").
			Group(quote("user_name")).
			Scan(&procs).Error
		if err != nil {
			return readError(err, c, string(catalog.Processes))
		}
		return nil
	})
	g.Go(func() error {
		failure := "CASE WHEN " + quote("success") + " = ? OR LOWER(" + quote("event_type") + ") LIKE ? THEN 1 ELSE 0 END"
		err := q(catalog.AuthLogs).
			Select(quote("username")+" AS username, COUNT(*) AS events, SUM("+failure+") AS failures, MAX("+
				quote("timestamp")+") AS last", false, "%fail%").
			Where(quote("username") + " IS NOT NULL").
			Group(quote("username")).
			Scan(&auth).Error
		if err != nil {
			return readError(err, c, string(catalog.AuthLogs))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byName := make(map[string]*UserSummary)
	get := func(name string) *UserSummary {
		name = strings.TrimSpace(name)
		if u, ok := byName[name]; ok {
			return u
		}
		u := &UserSummary{Username: name}
		byName[name] = u
		return u
	}

	for _, a := range accounts {
		if strings.TrimSpace(a.Username) == "" {
			continue
		}
		u := get(a.Username)
		u.UID, u.Shell, u.HomeDirectory = a.UID, a.Shell, a.HomeDirectory
	}
	for _, p := range procs {
		if strings.TrimSpace(p.UserName) == "" {
			continue
		}
		get(p.UserName).ProcessCount += p.N
	}
	for _, a := range auth {
		if strings.TrimSpace(a.Username) == "" {
			continue
		}
		u := get(a.Username)
		u.AuthEvents += a.Events
		u.AuthFailures += a.Failures
		if a.Last == nil {
			continue
		}
		if ts, ok := parseStoredTime(*a.Last); ok {
			if u.LastAuthEvent == nil || ts.After(*u.LastAuthEvent) {
				u.LastAuthEvent = &ts
			}
		}
	}

	out := make([]UserSummary, 0, len(byName))
	for _, u := range byName {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
