package main

// Options is the root command. Sub-commands are allocated by Init so go-flags only
// populates the one being run.
type Options struct {
	ConfigPath string `short:"f" long:"config" description:"config YAML path (env vars and defaults apply when omitted)"`

	Serve   *ServeCmd   `command:"serve" description:"Start the HTTP server"`
	Ask     *AskCmd     `command:"ask" description:"Ask a single question and print the event stream"`
	Config  *ConfigCmd  `command:"config" description:"Manage the config file"`
	Version *VersionCmd `command:"version" description:"Print build information"`
}

func (o *Options) Init(firstArg string) {
	switch firstArg {
	case "serve":
		o.Serve = &ServeCmd{}
	case "ask":
		o.Ask = &AskCmd{}
	case "config":
		o.Config = &ConfigCmd{}
	case "version":
		o.Version = &VersionCmd{}
	}
}

// configured is implemented by commands that read the config file.
type configured interface {
	setConfigPath(path string)
}

type configPath struct {
	path string
}

func (c *configPath) setConfigPath(path string) { c.path = path }
