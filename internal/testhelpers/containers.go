package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/localnerve/lite/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container credentials
const (
	ContainerDatabase = "lite"
	ContainerUser     = "lite"
	ContainerPassword = "lite-secret"
)

// ContainerOptions selects the images started by StartContainers.
// Empty fields fall back to DB_TYPE, DB_IMAGE and REDIS_IMAGE, then to the defaults.
type ContainerOptions struct {
	DBType     string
	DBImage    string
	RedisImage string
}

// Containers is a running database and redis pair on a private network
type Containers struct {
	Network *testcontainers.DockerNetwork
	DB      testcontainers.Container
	Redis   testcontainers.Container
	// Config points at the mapped host ports
	Config *config.Config
}

// DockerAvailable pings the docker daemon described by the environment
func DockerAvailable(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli.Close()

	_, err = cli.Ping(ctx)
	return err
}

// RequireContainers starts the stack for an integration test, or skips the
// test in short mode and when docker is unreachable.
func RequireContainers(t *testing.T, opts ContainerOptions) *Containers {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DockerAvailable(ctx); err != nil {
		t.Skipf("Skipping integration test, docker unavailable: %v", err)
	}

	tc, err := StartContainers(t, opts)
	if err != nil {
		t.Fatalf("Failed to start containers: %v", err)
	}
	t.Cleanup(func() { tc.Terminate(t) })
	return tc
}

// StartContainers starts the database and redis containers. t may be nil.
func StartContainers(t testing.TB, opts ContainerOptions) (*Containers, error) {
	ctx := context.Background()
	opts = withDefaults(opts)
	tc := &Containers{}

	nw, err := network.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	tc.Network = nw

	dbPort, err := nat.NewPort("tcp", dbContainerPort(opts.DBType))
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	logMessage(t, "Starting %s (%s)", opts.DBType, describeImage(ctx, opts.DBImage))
	dbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        opts.DBImage,
			ExposedPorts: []string{string(dbPort)},
			Env:          dbInitEnv(opts.DBType),
			WaitingFor:   dbWaitStrategy(opts.DBType, dbPort),
			Networks:     []string{nw.Name},
			NetworkAliases: map[string][]string{
				nw.Name: {"db"},
			},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("failed to start database: %w", err)
	}
	tc.DB = dbContainer

	redisPort, _ := nat.NewPort("tcp", "6379")
	logMessage(t, "Starting redis (%s)", describeImage(ctx, opts.RedisImage))
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        opts.RedisImage,
			ExposedPorts: []string{string(redisPort)},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
			Networks:     []string{nw.Name},
			NetworkAliases: map[string][]string{
				nw.Name: {"redis"},
			},
		},
		Started: true,
	})
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("failed to start redis: %w", err)
	}
	tc.Redis = redisContainer

	dbHost, err := dbContainer.Host(ctx)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	dbMapped, err := dbContainer.MappedPort(ctx, dbPort)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	redisMapped, err := redisContainer.MappedPort(ctx, redisPort)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}

	if opts.DBType == "mariadb" || opts.DBType == "mysql" {
		if err := waitForMySQL(dbHost, dbMapped); err != nil {
			tc.Terminate(t)
			return nil, err
		}
	}

	tc.Config = &config.Config{
		Port:                    "3000",
		DBType:                  opts.DBType,
		DBHost:                  dbHost,
		DBPort:                  dbMapped.Port(),
		DBDatabase:              ContainerDatabase,
		DBAppUser:               ContainerUser,
		DBAppPassword:           ContainerPassword,
		DBAppConnectionLimit:    5,
		DBReadUser:              ContainerUser,
		DBReadPassword:          ContainerPassword,
		DBReadConnectionLimit:   5,
		DBLogLevel:              "silent",
		DBAutoMigrate:           true,
		RedisURL:                fmt.Sprintf("redis://%s:%s/0", redisHost, redisMapped.Port()),
		UploadFolder:            os.TempDir(),
		MaxUploadBytes:          10 << 20,
		CasesPerPage:            20,
		RowsPerPage:             50,
		MaxConcurrentIngestions: 2,
		IngestBatchSize:         100,
		LogFormat:               "text",
		ShutdownTimeout:         10 * time.Second,
	}

	logMessage(t, "DB_HOST=%s DB_PORT=%s REDIS_URL=%s", dbHost, dbMapped.Port(), tc.Config.RedisURL)
	return tc, nil
}

// Terminate stops every started container and removes the network
func (tc *Containers) Terminate(t testing.TB) {
	ctx := context.Background()
	if tc.Redis != nil {
		if err := tc.Redis.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate redis: %v", err)
		}
	}
	if tc.DB != nil {
		if err := tc.DB.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate database: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logMessage(t, "Failed to remove network: %v", err)
		}
	}
}

func withDefaults(opts ContainerOptions) ContainerOptions {
	if opts.DBType == "" {
		opts.DBType = envOr("DB_TYPE", "postgres")
	}
	if opts.DBImage == "" {
		def := "postgres:17-alpine"
		if opts.DBType == "mariadb" || opts.DBType == "mysql" {
			def = "mariadb:11"
		}
		opts.DBImage = envOr("DB_IMAGE", def)
	}
	if opts.RedisImage == "" {
		opts.RedisImage = envOr("REDIS_IMAGE", "redis:7-alpine")
	}
	return opts
}

func dbContainerPort(dbType string) string {
	if dbType == "mariadb" || dbType == "mysql" {
		return "3306"
	}
	return "5432"
}

func dbInitEnv(dbType string) map[string]string {
	switch dbType {
	case "mariadb", "mysql":
		return map[string]string{
			"MYSQL_ROOT_PASSWORD": ContainerPassword,
			"MYSQL_DATABASE":      ContainerDatabase,
			"MYSQL_USER":          ContainerUser,
			"MYSQL_PASSWORD":      ContainerPassword,
		}
	default:
		return map[string]string{
			"POSTGRES_PASSWORD": ContainerPassword,
			"POSTGRES_USER":     ContainerUser,
			"POSTGRES_DB":       ContainerDatabase,
		}
	}
}

func dbWaitStrategy(dbType string, port nat.Port) wait.Strategy {
	if dbType == "mariadb" || dbType == "mysql" {
		return wait.ForListeningPort(port).WithStartupTimeout(90 * time.Second)
	}
	// postgres logs ready twice, once for the init server
	return wait.ForAll(
		wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		wait.ForListeningPort(port),
	).WithDeadline(90 * time.Second)
}

// mariadb accepts connections before the init scripts finish
func waitForMySQL(host string, port nat.Port) error {
	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", ContainerUser, ContainerPassword, host, port.Port(), ContainerDatabase))
	if err != nil {
		return err
	}
	defer db.Close()

	for i := 0; i < 30; i++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(1 * time.Second)
	}
	return fmt.Errorf("mariadb not ready after 30 seconds: %w", err)
}

func describeImage(ctx context.Context, imageName string) string {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return imageName
	}
	defer cli.Close()

	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return imageName
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == imageName {
				return imageName + ", cached"
			}
		}
	}
	return imageName + ", pulling"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func logMessage(t testing.TB, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
