/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/openkvm/keywave/pkg/cli"
	"github.com/openkvm/keywave/pkg/version"
)

const defaultAddr = "127.0.0.1:8590"

func main() {
	addr := flag.String("addr", defaultAddr, "keywaved status API address")
	showVersion := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "show help message")
	flag.Parse()

	if *help {
		fmt.Printf(`keywavectl: Terminal status monitor for keywaved

Usage:
  keywavectl [options]

Options:
  -addr string  keywaved status API address (default %s)
  -version      print version and exit
  -help         show this help message

Keys:
  c         clear the event log
  r         retry the connection now
  q/Esc     quit
`, defaultAddr)
		os.Exit(0)
	}

	if *showVersion {
		fmt.Println("keywavectl " + version.GetFullVersion())
		os.Exit(0)
	}

	if err := cli.Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
