package configuration

type Configuration struct {
	HttpAddr        string `usage:"HTTP address"`
	Dir             string `usage:"data directory for the snapshot file"`
	Database        string `usage:"SQLite file backing the relational mirror"`
	MirrorTimeoutMs int    `usage:"timeout in milliseconds for every mirror call"`
	Version         bool   `usage:"show version and exit"`
	ShowBanner      bool   `usage:"show big banner"`
	ShowConfig      bool   `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:        ":8080",
		Dir:             "data",
		Database:        "data/mirror.db",
		MirrorTimeoutMs: 2000,
	}
}
