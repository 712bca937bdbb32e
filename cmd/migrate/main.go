package main

import (
	"log"
	"os"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jessevdk/go-flags"
	_ "github.com/joho/godotenv/autoload"
	"github.com/pressly/goose/v3"

	"fanout/internal/repository"
	"fanout/migrations"
)

type options struct {
	Dir  string `long:"dir" description:"directory with migration files, embedded migrations are used when empty"`
	Args struct {
		Command string   `positional-arg-name:"command" required:"yes" description:"goose command: up, down, status, ..."`
		Rest    []string `positional-arg-name:"args"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}

	dir := opts.Dir
	if dir == "" {
		goose.SetBaseFS(migrations.FS)
		dir = "."
	}
	goose.SetSequential(true)
	goose.SetVerbose(true)

	dbCfg, err := repository.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	db, err := goose.OpenDBWithDriver("pgx", dbCfg.URL())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := goose.Run(opts.Args.Command, db, dir, opts.Args.Rest...); err != nil {
		log.Fatalf("goose %v: %v", opts.Args.Command, err)
	}
}
