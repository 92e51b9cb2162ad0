package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/lite/internal/testhelpers"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "f", "", "path to the .env file")
	var dbType string
	flag.StringVar(&dbType, "db", "", "database type, postgres or mariadb")
	flag.Parse()

	usage := `
Run a lite development stack (database and redis) in testcontainers.
Prints the DB_* and REDIS_URL settings to point a local server at.

Usage:

testcontainers [-h] [-f ENV_FILE_PATH] [-db postgres|mariadb]

ENV_FILE_PATH: path to a .env file with DB_TYPE, DB_IMAGE or REDIS_IMAGE

example
  testcontainers -f /path/to/something/.env
`
	if showHelp {
		fmt.Println(usage)
		return
	}

	if envFilename != "" {
		log.Printf("Loading environment variables from %s\n", envFilename)
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	} else {
		log.Printf("No environment file specified, using current environment variables\n")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	started := make(chan *testhelpers.Containers, 1)
	go func() {
		tc, err := testhelpers.StartContainers(nil, testhelpers.ContainerOptions{DBType: dbType})
		if err != nil {
			log.Fatalf("Failed to create test containers: %v\n", err)
		}
		cfg := tc.Config
		fmt.Printf("DB_TYPE=%s\nDB_HOST=%s\nDB_PORT=%s\nDB_DATABASE=%s\nDB_APP_USER=%s\nDB_APP_PASSWORD=%s\nREDIS_URL=%s\n",
			cfg.DBType, cfg.DBHost, cfg.DBPort, cfg.DBDatabase, cfg.DBAppUser, cfg.DBAppPassword, cfg.RedisURL)
		started <- tc
	}()

	var tc *testhelpers.Containers
	select {
	case sig := <-sigs:
		log.Printf("\nReceived signal: %v before the stack was ready\n", sig)
		// wait so the containers can be torn down
		tc = <-started
	case tc = <-started:
		sig := <-sigs
		log.Printf("\nReceived signal: %v, terminating test containers...\n", sig)
	}
	tc.Terminate(nil)
}
