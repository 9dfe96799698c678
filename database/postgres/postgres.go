// Package postgres starts disposable PostgreSQL servers for tests.
package postgres

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"golang.org/x/xerrors"

	// Register the "postgres" driver.
	_ "github.com/lib/pq"
)

// ExternalURLEnv names a server to use instead of starting a container.
// CI provides one so every package does not pay for its own container.
const ExternalURLEnv = "OPSDASH_TEST_PG_URL"

// Open returns the URL of an empty PostgreSQL database. A fresh database is
// created on the server named by ExternalURLEnv when set; otherwise a Docker
// container is started. The returned func releases the database.
func Open() (string, func(), error) {
	if serverURL := os.Getenv(ExternalURLEnv); serverURL != "" {
		return createDatabase(serverURL)
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		return "", nil, xerrors.Errorf("create pool: %w", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=postgres",
			"listen_addresses = '*'",
		},
		// fsync is pointless for a throwaway database.
		Cmd: []string{"-c", "fsync=off"},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return "", nil, xerrors.Errorf("could not start resource: %w", err)
	}
	purge := func() {
		_ = pool.Purge(resource)
	}

	hostAndPort := resource.GetHostPort("5432/tcp")
	dbURL := fmt.Sprintf("postgres://postgres:postgres@%s/postgres?sslmode=disable", hostAndPort)

	// Docker should hard-kill the container after 120 seconds.
	err = resource.Expire(120)
	if err != nil {
		purge()
		return "", nil, xerrors.Errorf("could not expire resource: %w", err)
	}

	pool.MaxWait = 120 * time.Second
	err = pool.Retry(func() error {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			return err
		}
		err = db.Ping()
		_ = db.Close()
		return err
	})
	if err != nil {
		purge()
		return "", nil, xerrors.Errorf("wait for postgres: %w", err)
	}
	return dbURL, purge, nil
}

func createDatabase(serverURL string) (string, func(), error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", nil, xerrors.Errorf("parse %s: %w", ExternalURLEnv, err)
	}
	db, err := sql.Open("postgres", serverURL)
	if err != nil {
		return "", nil, xerrors.Errorf("connect to server: %w", err)
	}
	defer db.Close()

	name := "ci" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := db.Exec("CREATE DATABASE " + name); err != nil {
		return "", nil, xerrors.Errorf("create database: %w", err)
	}
	u.Path = "/" + name
	return u.String(), func() {
		db, err := sql.Open("postgres", serverURL)
		if err != nil {
			return
		}
		defer db.Close()
		_, _ = db.Exec("DROP DATABASE IF EXISTS " + name + " WITH (FORCE)")
	}, nil
}
