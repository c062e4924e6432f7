package logging

import (
	"log"
	"os"
)

var (
	Internal = log.New(os.Stdout, "[internal] ", log.LstdFlags)
	HTTP     = log.New(os.Stdout, "[http] ", log.LstdFlags)
	Sweep    = log.New(os.Stdout, "[sweep] ", log.LstdFlags)
	S3       = log.New(os.Stdout, "[s3] ", log.LstdFlags)
)
