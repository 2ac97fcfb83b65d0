package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fulldump/goconfig"

	"github.com/itemdb/itemdb/bootstrap"
	"github.com/itemdb/itemdb/configuration"
)

var banner = `
 _____ _                ______ ______
|_   _| |               |  _  \| ___ \
  | | | |_  ___  _ __ ___| | | || |_/ /
  | | | __|/ _ \| '_ ' _ \ | | || ___ \
 _| |_| |_|  __/| | | | | | |/ /| |_/ /
 \___/ \__|\___||_| |_| |_|___/ \____/
                          version ` + bootstrap.VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	start, _, err := bootstrap.Bootstrap(c)
	if err != nil {
		slog.Error("bootstrap", "error", err)
		os.Exit(1)
	}

	start()
}
