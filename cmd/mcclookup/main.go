// Command mcclookup is an interactive shell over the MCC plist database.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"radiolog/mcc"
)

func main() {
	dataPath := pflag.String("data", "data/mcc/mcc.plist", "path to mcc.plist data file")
	pflag.Parse()

	db, err := mcc.Load(*dataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading MCC database: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("loaded MCC database with %d entries\n", len(db.Keys))
	fmt.Println("enter MCC or MCC+MNC (Ctrl+C to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		plmn := strings.TrimSpace(scanner.Text())
		if plmn == "" {
			continue
		}
		info, ok := db.LookupPLMN(plmn)
		if !ok {
			fmt.Println("no matching entry")
			continue
		}
		operator := info.Operator
		if operator == "" {
			operator = "-"
		}
		fmt.Printf("%s -> key=%s, country=%s (%s), operator=%s, continent=%s\n",
			plmn, info.Key, info.Country, info.ISO, operator, info.Continent)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "input error: %v\n", err)
	}
}
