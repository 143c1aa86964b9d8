package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"landplots/internal/catalog"
	"landplots/internal/finance"
	"landplots/internal/report"
	"landplots/internal/session"
	"landplots/internal/types"
)

const shellHelp = `Commands:
  <text> | find <text>      search parcels by cadastral number, address or purpose
  show <id>                 parcel details
  add <id> | rm <id>        put a parcel on / take it off the map
  all [text]                put every match on the map
  clear                     empty the map
  sel                       list the selection with totals
  set <id> value|rent <n>   edit assessed value or monthly rent
  at <lat> <lon>            parcels containing a point
  load <path>...            add parcels from local files
  connect | disconnect      Google Drive session
  files [text]              list Drive files, drive <file-id> to load one
  sheets <id> [range]       load a Google Sheets range
  export [path] | xlsx [path]
  archive [label]           save the selection to the Oracle archive
  status | regions | help   (blank line quits)`

// runShell is the interactive loop. Unknown input is treated as a search.
func runShell(ctx context.Context, in io.Reader) {
	printStatusLine()
	reader := bufio.NewReader(in)
	for {
		fmt.Print("landplots> ")
		input, err := reader.ReadString('\n')
		line := strings.TrimSpace(input)
		if line == "" {
			return
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		args := strings.Fields(rest)

		switch strings.ToLower(cmd) {
		case "help", "?":
			fmt.Println(shellHelp)
		case "status":
			printStatusLine()
		case "find":
			showSearch(rest, reader)
		case "show":
			if p, ok := lookup(args); ok {
				renderParcel(p)
			}
		case "add":
			if len(args) > 0 {
				if _, err := ws.Select(args[0]); err != nil {
					fmt.Println(err)
				}
				printSelection()
			}
		case "rm":
			if len(args) > 0 {
				ws.Deselect(args[0])
				printSelection()
			}
		case "all":
			n := ws.ShowMatches(rest)
			fmt.Printf("%d parcels on the map\n", n)
		case "clear":
			ws.Catalog().ClearSelection()
			fmt.Println("Map cleared")
		case "sel":
			printSelection()
		case "set":
			editFinancial(args)
		case "at":
			locate(args)
		case "regions":
			for _, r := range ws.Catalog().LoadedRegions() {
				fmt.Println("  " + r)
			}
		case "load":
			n, err := ws.LoadLocalFiles(args...)
			fmt.Printf("%d parcels loaded\n", n)
			if err != nil {
				fmt.Println(colorRed + session.UserMessage(err) + colorReset)
			}
		case "connect":
			if err := ws.Connect(ctx); err != nil {
				fmt.Println(colorRed + session.UserMessage(err) + colorReset)
				break
			}
			printStatusLine()
			printFiles()
		case "disconnect":
			_ = ws.Disconnect(ctx)
			printStatusLine()
		case "files":
			if _, err := ws.RefreshFiles(ctx, rest); err != nil {
				fmt.Println(colorRed + session.UserMessage(err) + colorReset)
				break
			}
			printFiles()
		case "drive":
			loadDrive(ctx, args)
		case "sheets":
			loadSheets(ctx, args)
		case "export":
			exportTo(rest, report.FileName, ws.Export)
		case "xlsx":
			exportTo(rest, report.WorkbookFileName, ws.ExportWorkbook)
		case "archive":
			a, err := ws.Archive(ctx, rest)
			if err != nil {
				fmt.Println(colorRed + err.Error() + colorReset)
				break
			}
			fmt.Printf("Archived %d parcels as %s\n", a.ParcelCount, a.ID)
		default:
			showSearch(line, reader)
		}

		if err != nil {
			return
		}
	}
}

func printStatusLine() {
	st := ws.Status()
	if st.Banner != "" {
		fmt.Println(colorRed + st.Banner + colorReset)
	}
	who := ""
	if st.User != nil {
		who = " as " + st.User.Email
	}
	fmt.Printf("Drive: %s%s | %d parcels loaded, %d on the map\n", st.State, who, st.Parcels, st.Summary.Count)
	if st.Message != "" {
		fmt.Println(st.Message)
	}
}

func lookup(args []string) (types.Parcel, bool) {
	if len(args) == 0 {
		fmt.Println("parcel id required")
		return types.Parcel{}, false
	}
	p, ok := ws.Catalog().Get(args[0])
	if !ok {
		fmt.Printf("No parcel with id %s\n", args[0])
	}
	return p, ok
}

func parcelLine(p types.Parcel) string {
	mark := " "
	if ws.Catalog().IsSelected(p.ID) {
		mark = "*"
	}
	return fmt.Sprintf("%s %-14s | %-22s | %-40s | %s", mark, p.ID, p.CadastralNumber, truncate(p.Address, 40), finance.FormatPercentage(p.Profitability()))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func showSearch(query string, reader *bufio.Reader) {
	found := ws.Search(query)
	if len(found) == 0 {
		fmt.Printf("No parcels match %q\n", query)
		return
	}
	ids := make([]string, len(found))
	lines := make([]string, len(found))
	for i, p := range found {
		ids[i] = p.ID
		lines[i] = parcelLine(p)
	}
	if len(found) == 1 {
		renderParcel(found[0])
		askSelect(found[0].ID, reader)
		return
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	interactiveSelect(ids, lines)
}

// askSelect offers to put a parcel on the map.
func askSelect(id string, reader *bufio.Reader) {
	if ws.Catalog().IsSelected(id) {
		return
	}
	fmt.Print("Add to map? (y/N): ")
	resp, _ := reader.ReadString('\n')
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		if _, err := ws.Select(id); err != nil {
			fmt.Printf("Failed to select: %v\n", err)
		} else {
			fmt.Println("Added.")
		}
	}
}

// renderParcel prints one parcel in a readable layout.
func renderParcel(p types.Parcel) {
	onMap := ""
	if ws.Catalog().IsSelected(p.ID) {
		onMap = fmt.Sprintf(" %s[on map]%s", colorGreen, colorReset)
	}
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Id                : %s%s\n", p.ID, onMap)
	fmt.Printf("Cadastral number  : %s\n", p.CadastralNumber)
	fmt.Printf("Region            : %s\n", catalog.RegionName(catalog.RegionCode(p.CadastralNumber)))
	fmt.Printf("Address           : %s\n", p.Address)
	fmt.Printf("Purpose           : %s\n", p.Purpose)
	fmt.Printf("Area              : %.4f ha\n", p.Area)
	fmt.Println()

	fmt.Printf("Value             : %s\n", finance.FormatCurrency(p.Value))
	fmt.Printf("Rent / month      : %s\n", finance.FormatCurrency(p.RentIncome))
	fmt.Printf("Profitability     : %s\n", finance.FormatPercentage(p.Profitability()))
	fmt.Println()

	fmt.Printf("Source            : %s %s\n", catalog.SourceIcon(p.Source), catalog.SourceName(p.Source))
	if p.FileName != "" {
		fmt.Printf("File              : %s\n", p.FileName)
	}
	vertices := 0
	for _, r := range p.Coordinates {
		vertices += len(r)
	}
	fmt.Printf("Geometry          : %d ring(s), %d vertices\n", len(p.Coordinates), vertices)
	fmt.Println(strings.Repeat("-", 80))
}

func printSelection() {
	sel := ws.Catalog().Selected()
	if len(sel) == 0 {
		fmt.Println("Nothing on the map.")
		return
	}
	for _, g := range catalog.GroupBySource(sel) {
		fmt.Printf("%s %s (%d)\n", g.Icon, g.Name, len(g.Parcels))
		for _, p := range g.Parcels {
			fmt.Println(parcelLine(p))
		}
	}
	s := catalog.Summarize(sel)
	fmt.Printf("Total: %d parcels, %.4f ha, value %s, rent %s/month, mean yield %s (σ %s)\n",
		s.Count, s.TotalArea, finance.FormatCurrency(s.TotalValue), finance.FormatCurrency(s.TotalRentIncome),
		finance.FormatPercentage(s.MeanProfitability), finance.FormatPercentage(s.StdDevProfitability))
}

func editFinancial(args []string) {
	if len(args) < 3 {
		fmt.Println("usage: set <id> value|rent <amount>")
		return
	}
	field := args[1]
	if field == "rent" {
		field = "rentIncome"
	}
	p, err := ws.EditFinancial(args[0], field, strings.Join(args[2:], " "))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%s: value %s, rent %s, yield %s\n", p.ID, finance.FormatCurrency(p.Value), finance.FormatCurrency(p.RentIncome), finance.FormatPercentage(p.Profitability()))
}

func locate(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: at <lat> <lon>")
		return
	}
	lat, err1 := strconv.ParseFloat(args[0], 64)
	lon, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil {
		fmt.Println("lat and lon must be numbers")
		return
	}
	found := ws.Catalog().Containing(lat, lon)
	if len(found) == 0 {
		fmt.Println("No parcel contains that point")
	}
	for _, p := range found {
		fmt.Println(parcelLine(p))
	}
}

func printFiles() {
	files := ws.Status().Files
	if len(files) == 0 {
		fmt.Println("No parcel files on Drive")
		return
	}
	for _, f := range files {
		fmt.Printf("  %-34s | %-36s | %s\n", f.ID, truncate(f.Name, 36), f.ModifiedTime.Format("02.01.2006 15:04"))
	}
}

func loadDrive(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: drive <file-id>")
		return
	}
	f, ok := ws.DriveFile(args[0])
	if !ok {
		f = types.DriveFile{ID: args[0], Name: args[0]}
	}
	res, err := ws.LoadDriveFile(ctx, f)
	reportLoad(res.Parcels, res.Skipped, err)
}

func loadSheets(ctx context.Context, args []string) {
	id, rng := "", ""
	if len(args) > 0 {
		id = args[0]
	}
	if len(args) > 1 {
		rng = args[1]
	}
	res, err := ws.LoadSheet(ctx, id, rng)
	reportLoad(res.Parcels, res.Skipped, err)
}

func reportLoad(parcels []types.Parcel, skipped int, err error) {
	if err != nil {
		fmt.Println(colorRed + session.UserMessage(err) + colorReset)
		return
	}
	fmt.Printf("%d parcels loaded, %d skipped\n", len(parcels), skipped)
	if msg := ws.Status().Message; msg != "" {
		fmt.Println(msg)
	}
}

// exportTo writes a report to path, or to cfg.ExportDir/name when path is
// empty.
func exportTo(path, name string, render func(io.Writer) error) {
	if path == "" {
		path = filepath.Join(cfg.ExportDir, name)
	}
	if err := writeFile(path, render); err != nil {
		fmt.Printf("Export failed: %v\n", err)
		return
	}
	fmt.Printf("Saved %s\n", path)
}

func writeFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
