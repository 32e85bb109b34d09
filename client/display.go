package client

import (
	"strconv"

	"github.com/alejzeis/strangerchat/common"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
)

// display is where the client writes everything the user should see
type display interface {
	Info(msg string)
	Success(msg string)
	Warning(msg string)
	Error(msg string)
	Chat(from string, msg string)
	Table(rows [][]string)
}

type ptermDisplay struct{}

func (ptermDisplay) Info(msg string)    { pterm.Info.Println(msg) }
func (ptermDisplay) Success(msg string) { pterm.Success.Println(msg) }
func (ptermDisplay) Warning(msg string) { pterm.Warning.Println(msg) }
func (ptermDisplay) Error(msg string)   { pterm.Error.Println(msg) }

func (ptermDisplay) Chat(from string, msg string) {
	pterm.Printfln("%s %s", pterm.Bold.Sprint(from+":"), msg)
}

func (ptermDisplay) Table(rows [][]string) {
	_ = pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData(rows)).Render()
}

func statsTable(stats common.StatsResponse) [][]string {
	format := func(n uint64) string { return strconv.FormatUint(n, 10) }
	return [][]string{
		{"Connected", "Idle", "Searching", "Paired", "Queued", "Matches", "Relayed", "Dropped"},
		{
			strconv.Itoa(stats.Connected),
			strconv.Itoa(stats.Idle),
			strconv.Itoa(stats.Searching),
			strconv.Itoa(stats.Paired),
			strconv.Itoa(stats.Queued),
			format(stats.MatchesTotal),
			format(stats.RelayedTotal),
			format(stats.DroppedTotal),
		},
	}
}

func iceServersTable(servers []webrtc.ICEServer) [][]string {
	rows := [][]string{{"URL", "Username"}}
	for _, server := range servers {
		for _, url := range server.URLs {
			rows = append(rows, []string{url, server.Username})
		}
	}
	return rows
}
