// README: Smoke cases for the subscription and route APIs, plus DB/Redis checks and load runs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"schoolride/internal/infra"
	"schoolride/internal/types"
	"schoolride/migrations"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"

	benchParent = "bench-parent"
	benchDriver = "bench-driver"
	benchAdmin  = "bench-admin"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	schoolID       string
	subscriptionID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return fail("db not configured")
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return fail(err.Error())
			}
			return Result{Status: StatusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return fail("redis not configured")
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return fail(err.Error())
			}
			return Result{Status: StatusPass}
		}},
		{Name: "Migration: apply (optional)", Run: func(ctx context.Context, r *Runner) Result {
			if !r.cfg.ApplyMigration {
				return skip("apply-migration=false")
			}
			if r.db == nil {
				return fail("db not configured")
			}
			if err := infra.Migrate(ctx, r.db); err != nil {
				return fail(err.Error())
			}
			return Result{Status: StatusPass}
		}},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, err := r.call(ctx, http.MethodGet, "/health", "", "", nil, nil)
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "Seed: school", Run: seedSchool},
		{Name: "Subscription: create generates rides", Run: createSubscription},
		{Name: "Subscription: invalid weekday -> 400", Run: func(ctx context.Context, r *Runner) Result {
			body := r.subscriptionBody()
			body["days_of_week"] = []int{7}
			status, latency, err := r.call(ctx, http.MethodPost, "/api/subscriptions", benchParent, "parent", body, nil)
			return expect(status, latency, err, http.StatusBadRequest)
		}},
		{Name: "Subscription: regenerate is idempotent", Run: func(ctx context.Context, r *Runner) Result {
			if r.subscriptionID == "" {
				return skip("no subscription created")
			}
			var out struct {
				RidesGenerated int `json:"rides_generated"`
			}
			status, latency, err := r.call(ctx, http.MethodPost, "/api/subscriptions/"+r.subscriptionID+"/generate", benchParent, "parent", nil, &out)
			if res := expect(status, latency, err, http.StatusOK); res.Status != StatusPass {
				return res
			}
			if out.RidesGenerated != 0 {
				return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("rides_generated=%d", out.RidesGenerated)}
			}
			return Result{Status: StatusPass, Latency: latency}
		}},
		{Name: "Concurrency: parallel generate creates nothing twice", Run: parallelGenerate},
		{Name: "DB: one ride per kid and pickup time", Run: checkNoDuplicateRides},
		{Name: "Subscription: pause then resume", Run: func(ctx context.Context, r *Runner) Result {
			if r.subscriptionID == "" {
				return skip("no subscription created")
			}
			base := "/api/subscriptions/" + r.subscriptionID
			status, latency, err := r.call(ctx, http.MethodPost, base+"/pause", benchParent, "parent", nil, nil)
			if res := expect(status, latency, err, http.StatusOK); res.Status != StatusPass {
				return res
			}
			status, latency, err = r.call(ctx, http.MethodPost, base+"/resume", benchParent, "parent", nil, nil)
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "Route: preview", Run: func(ctx context.Context, r *Runner) Result {
			if r.schoolID == "" {
				return skip("no school seeded")
			}
			body := map[string]any{
				"school_id": r.schoolID,
				"waypoints": []map[string]any{
					{"latitude": 25.041, "longitude": 121.543},
					{"latitude": 25.037, "longitude": 121.561},
				},
			}
			status, latency, err := r.call(ctx, http.MethodPost, "/api/routes/preview", benchAdmin, "admin", body, nil)
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "Fare: quote", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, err := r.call(ctx, http.MethodPost, "/api/fares/quote", benchParent, "parent", quoteBody(), nil)
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "Perf: driver location throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodPut, "/api/drivers/"+benchDriver+"/location", benchDriver, "driver", map[string]any{
				"latitude":  25.033,
				"longitude": 121.565,
			})
		}},
		{Name: "Perf: fare quote throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodPost, "/api/fares/quote", benchParent, "parent", quoteBody())
		}},
	}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return fail("db not configured")
	}
	tables, err := migrationTables()
	if err != nil {
		return fail(err.Error())
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return fail(err.Error())
		}
		if !exists {
			return fail("missing table: " + t)
		}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("%d tables", len(tables))}
}

func seedSchool(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return fail("db not configured")
	}
	id := string(types.NewID())
	_, err := r.db.Exec(ctx, `
		INSERT INTO schools (id, name, address, lat, lng, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		id, "Bench Elementary", "1 Bench Rd", 25.047, 121.517,
	)
	if err != nil {
		return fail(err.Error())
	}
	r.schoolID = id
	return Result{Status: StatusPass, Note: "school_id=" + id}
}

func (r *Runner) subscriptionBody() map[string]any {
	return map[string]any{
		"kid_id":            "bench-kid-" + string(types.NewID())[:8],
		"school_id":         r.schoolID,
		"subscription_type": "WEEKLY",
		"start_date":        time.Now().UTC().Format(types.DateLayout),
		"days_of_week":      []int{0, 1, 2, 3, 4, 5, 6},
		"pickup_time":       "07:30",
		"dropoff_time":      "08:10",
		"pickup_address":    "12 Bench St",
		"pickup":            map[string]float64{"latitude": 25.033, "longitude": 121.565},
		"dropoff_address":   "1 Bench Rd",
		"dropoff":           map[string]float64{"latitude": 25.047, "longitude": 121.517},
		"base_fare":         5,
	}
}

func createSubscription(ctx context.Context, r *Runner) Result {
	if r.schoolID == "" {
		return skip("no school seeded")
	}
	var out struct {
		Subscription struct {
			ID string `json:"id"`
		} `json:"subscription"`
		RidesGenerated int `json:"rides_generated"`
	}
	status, latency, err := r.call(ctx, http.MethodPost, "/api/subscriptions", benchParent, "parent", r.subscriptionBody(), &out)
	if res := expect(status, latency, err, http.StatusCreated); res.Status != StatusPass {
		return res
	}
	r.subscriptionID = out.Subscription.ID
	if out.RidesGenerated == 0 {
		return Result{Status: StatusFail, Latency: latency, Note: "no rides generated"}
	}
	return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("rides=%d", out.RidesGenerated)}
}

// parallelGenerate fires concurrent generate calls; each must either find
// nothing to do or lose the lease with 409.
func parallelGenerate(ctx context.Context, r *Runner) Result {
	if r.subscriptionID == "" {
		return skip("no subscription created")
	}
	path := "/api/subscriptions/" + r.subscriptionID + "/generate"

	var (
		wg                   sync.WaitGroup
		mu                   sync.Mutex
		ok, busy, bad, rides int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out struct {
				RidesGenerated int `json:"rides_generated"`
			}
			status, _, err := r.call(ctx, http.MethodPost, path, benchParent, "parent", nil, &out)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				bad++
			case status == http.StatusOK:
				ok++
				rides += out.RidesGenerated
			case status == http.StatusConflict:
				busy++
			default:
				bad++
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("ok=%d busy=%d other=%d rides=%d", ok, busy, bad, rides)
	if bad > 0 || rides > 0 {
		return Result{Status: StatusFail, Note: note}
	}
	return Result{Status: StatusPass, Note: note}
}

func checkNoDuplicateRides(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return fail("db not configured")
	}
	var dupes int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT kid_id, scheduled_pickup_time FROM rides
			GROUP BY kid_id, scheduled_pickup_time
			HAVING COUNT(*) > 1
		) d`).Scan(&dupes)
	if err != nil {
		return fail(err.Error())
	}
	if dupes > 0 {
		return fail(fmt.Sprintf("%d duplicated kid/pickup pairs", dupes))
	}
	return Result{Status: StatusPass}
}

func quoteBody() map[string]any {
	return map[string]any{
		"pickup":    map[string]float64{"latitude": 25.033, "longitude": 121.565},
		"dropoff":   map[string]float64{"latitude": 25.047, "longitude": 121.517},
		"base_fare": 5,
	}
}

// call sends a JSON request with debug auth headers and decodes the response
// into out when given. The API must run with SCHOOLRIDE_AUTH_DEV_HEADERS=true
// for these headers to be honoured.
func (r *Runner) call(ctx context.Context, method, path, uid, role string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-Debug-Uid", uid)
		req.Header.Set("X-Debug-Role", role)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

func perfLoad(ctx context.Context, r *Runner, method, path, uid, role string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count, errCount int64
		mu              sync.Mutex
		wg              sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.call(ctx, method, path, uid, role, payload, nil)
				mu.Lock()
				if err != nil || status >= 300 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return fail("no requests completed")
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func expect(status int, latency time.Duration, err error, want int) Result {
	if err != nil {
		return fail(err.Error())
	}
	note := fmt.Sprintf("status=%d", status)
	if status != want {
		return Result{Status: StatusFail, Latency: latency, Note: note + fmt.Sprintf(" want=%d", want)}
	}
	return Result{Status: StatusPass, Latency: latency, Note: note}
}

func fail(note string) Result {
	return Result{Status: StatusFail, Note: note}
}

func skip(note string) Result {
	return Result{Status: StatusSkip, Note: note}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func migrationTables() ([]string, error) {
	var tables []string
	err := fs.WalkDir(migrations.FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return err
		}
		b, err := fs.ReadFile(migrations.FS, path)
		if err != nil {
			return err
		}
		for _, m := range createTableRe.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
		return nil
	})
	return tables, err
}
