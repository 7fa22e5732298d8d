// Package main provides the operator/test CLI for the jukebox server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("jukectl", "Jukebox client for testing and operations")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Operator token (or JUKEBOX_ADMIN_TOKEN)").Envar("JUKEBOX_ADMIN_TOKEN").String()

	// join command
	joinCmd  = app.Command("join", "Join the listener channel")
	joinID   = joinCmd.Arg("id", "Listener ID").Required().String()
	joinName = joinCmd.Arg("name", "Display name").Required().String()

	// leave command
	leaveCmd = app.Command("leave", "Leave the listener channel")
	leaveID  = leaveCmd.Arg("id", "Listener ID").Required().String()

	// add command
	addCmd       = app.Command("add", "Submit a track or playlist URL")
	addSubmitter = addCmd.Arg("submitter-id", "Submitter ID").Required().String()
	addQuery     = addCmd.Arg("query", "Video or playlist URL").Required().String()
	addAmbiguous = addCmd.Flag("ambiguous", "List candidates instead of queueing").Bool()

	// queue command
	queueCmd   = app.Command("queue", "Show queued tracks")
	queueStart = queueCmd.Flag("start", "Start index").Default("0").Int()
	queueEnd   = queueCmd.Flag("end", "End index (exclusive)").Default("25").Int()

	// status command
	statusCmd = app.Command("status", "Show playback status")

	// playback commands
	playCmd   = app.Command("play", "Start or resume playback")
	pauseCmd  = app.Command("pause", "Pause playback")
	resumeCmd = app.Command("resume", "Resume playback")
	stopCmd   = app.Command("stop", "Stop the current track")

	// skip command
	skipCmd      = app.Command("skip", "Skip the current track (may open a vote)")
	skipProposer = skipCmd.Arg("proposer-id", "Proposer ID").Required().String()

	// delete command
	deleteCmd      = app.Command("delete", "Delete a queued track by index (may open a vote)")
	deleteProposer = deleteCmd.Arg("proposer-id", "Proposer ID").Required().String()
	deleteIndex    = deleteCmd.Arg("index", "Row-major queue index").Required().Int()

	// wipe command
	wipeCmd      = app.Command("wipe", "Wipe a submitter's tracks (may open a vote)")
	wipeProposer = wipeCmd.Arg("proposer-id", "Proposer ID").Required().String()
	wipeTarget   = wipeCmd.Arg("target-id", "Target submitter ID").Required().String()

	// ballot command
	ballotCmd      = app.Command("ballot", "Cast a ballot on a pending vote")
	ballotVoteID   = ballotCmd.Arg("vote-id", "Vote ID").Required().String()
	ballotListener = ballotCmd.Arg("listener-id", "Listener ID").Required().String()
	ballotAgainst  = ballotCmd.Flag("against", "Vote against instead of in favor").Bool()

	// votes command
	votesCmd = app.Command("votes", "List pending votes")

	// shuffle command
	shuffleCmd       = app.Command("shuffle", "Shuffle a submitter's queue")
	shuffleSubmitter = shuffleCmd.Arg("submitter-id", "Submitter ID").Required().String()

	// loop command
	loopCmd = app.Command("loop", "Toggle queue looping")

	// clear command (operator)
	clearCmd = app.Command("clear", "Clear the whole queue (operator)")

	// stats command
	statsCmd  = app.Command("stats", "Show a user's listening stats")
	statsUser = statsCmd.Arg("user-id", "User ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case joinCmd.FullCommand():
		post("/v1/listeners", map[string]any{"id": *joinID, "display_name": *joinName})
	case leaveCmd.FullCommand():
		do(http.MethodDelete, "/v1/listeners/"+*leaveID, nil)
	case addCmd.FullCommand():
		post("/v1/tracks", map[string]any{
			"submitter_id": *addSubmitter,
			"query":        *addQuery,
			"ambiguous":    *addAmbiguous,
		})
	case queueCmd.FullCommand():
		do(http.MethodGet, fmt.Sprintf("/v1/queue?start=%d&end=%d", *queueStart, *queueEnd), nil)
	case statusCmd.FullCommand():
		do(http.MethodGet, "/v1/status", nil)
	case playCmd.FullCommand():
		post("/v1/playback/play", nil)
	case pauseCmd.FullCommand():
		post("/v1/playback/pause", nil)
	case resumeCmd.FullCommand():
		post("/v1/playback/resume", nil)
	case stopCmd.FullCommand():
		post("/v1/playback/stop", nil)
	case skipCmd.FullCommand():
		post("/v1/skip", map[string]any{"proposer_id": *skipProposer})
	case deleteCmd.FullCommand():
		post("/v1/delete", map[string]any{"proposer_id": *deleteProposer, "index": *deleteIndex})
	case wipeCmd.FullCommand():
		post("/v1/wipe", map[string]any{"proposer_id": *wipeProposer, "target_id": *wipeTarget})
	case ballotCmd.FullCommand():
		post(fmt.Sprintf("/v1/votes/%s/ballots", *ballotVoteID),
			map[string]any{"listener_id": *ballotListener, "favor": !*ballotAgainst})
	case votesCmd.FullCommand():
		do(http.MethodGet, "/v1/votes", nil)
	case shuffleCmd.FullCommand():
		post("/v1/queue/shuffle", map[string]any{"submitter_id": *shuffleSubmitter})
	case loopCmd.FullCommand():
		post("/v1/looping", nil)
	case clearCmd.FullCommand():
		post("/v1/queue/clear", nil)
	case statsCmd.FullCommand():
		do(http.MethodGet, "/v1/stats/"+*statsUser, nil)
	}
}

func post(path string, body map[string]any) {
	do(http.MethodPost, path, body)
}

// do performs a request and pretty-prints the JSON response.
func do(method, path string, body map[string]any) {
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fail(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, *server+path, reader)
	if err != nil {
		fail(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("X-Admin-Token", *token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fail(err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}
