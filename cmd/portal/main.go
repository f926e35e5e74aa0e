// Command portal is the terminal client for the school portal API. It keeps
// one durable session slot on disk and routes every screen through the same
// role, cache and attendance layers the web client uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pramodabacco-sudo/school-sub002/internal/client/api"
	"github.com/pramodabacco-sudo/school-sub002/internal/client/attendance"
	"github.com/pramodabacco-sudo/school-sub002/internal/client/nav"
	"github.com/pramodabacco-sudo/school-sub002/internal/client/session"
	"github.com/pramodabacco-sudo/school-sub002/internal/client/syncdata"
	"github.com/pramodabacco-sudo/school-sub002/internal/model"
)

const rosterTTL = 30 * time.Second

func main() {
	log.SetFlags(0)

	serverURL := envOr("PORTAL_SERVER", "http://127.0.0.1:8080")
	sessionPath := os.Getenv("PORTAL_SESSION_FILE")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	sessions, err := session.NewStore(sessionPath)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	client := api.New(serverURL, sessions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "login":
		err = cmdLogin(ctx, client, args)
	case "register":
		err = cmdRegister(ctx, client, args)
	case "logout":
		err = client.Logout()
	case "whoami":
		err = cmdWhoami(ctx, client, sessions)
	case "route":
		err = cmdRoute(sessions, args)
	case "schools":
		err = cmdSchools(ctx, client)
	case "teachers":
		err = cmdTeachers(ctx, client, args)
	case "classes":
		err = cmdClasses(ctx, client)
	case "roster":
		err = cmdRoster(ctx, client, args)
	case "mark":
		err = cmdMark(ctx, client, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: portal <command> [flags]

commands:
  register   create a tenant and its first super-admin
  login      sign in as a given account kind
  logout     clear the local session
  whoami     show the stored session and server-side summary
  route      show where a path leads for the current session
  schools    list schools in scope
  teachers   list teachers (filterable)
  classes    list the signed-in teacher's classes
  roster     show a class roster for a date
  mark       mark attendance for a class and date`)
}

func cmdRegister(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	tenantCode := fs.String("tenant-code", "", "unique tenant code")
	tenantName := fs.String("tenant-name", "", "tenant display name")
	email := fs.String("email", "", "super-admin email")
	password := fs.String("password", "", "super-admin password")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	fs.Parse(args)

	auth, err := client.Register(ctx, api.RegisterRequest{
		TenantCode: *tenantCode,
		TenantName: *tenantName,
		Email:      *email,
		Password:   *password,
		FirstName:  *firstName,
		LastName:   *lastName,
	})
	if err != nil {
		return describeErr(err)
	}
	fmt.Printf("registered tenant %s, signed in as %s\n", *tenantCode, auth.User.Email)
	return nil
}

func cmdLogin(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	kind := fs.String("kind", "teacher", "account kind (super-admin|admin|teacher|student|parent)")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)

	if !model.ValidAccountKind(*kind) {
		return fmt.Errorf("unknown account kind %q", *kind)
	}
	auth, err := client.Login(ctx, model.AccountKind(*kind), *email, *password)
	if err != nil {
		return describeErr(err)
	}
	home := nav.HomePath(model.AccountKind(auth.AccountKind))
	fmt.Printf("signed in as %s (%s), home %s\n", auth.User.Email, auth.AccountKind, home)
	return nil
}

func cmdWhoami(ctx context.Context, client *api.Client, sessions *session.Store) error {
	current, ok, err := sessions.Load()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("not signed in")
		return nil
	}
	fmt.Printf("local: %s (%s), home %s\n",
		current.User.Email, current.AccountKind, nav.HomePath(model.AccountKind(current.AccountKind)))

	if current.AccountKind == string(model.KindSuperAdmin) {
		user, err := client.Me(ctx)
		if err != nil {
			return describeErr(err)
		}
		fmt.Printf("server: %s %s <%s>, tenant %s\n", user.FirstName, user.LastName, user.Email, user.TenantID)
	}
	return nil
}

func cmdRoute(sessions *session.Store, args []string) error {
	fs := flag.NewFlagSet("route", flag.ExitOnError)
	path := fs.String("path", "/", "requested path")
	fs.Parse(args)

	var kind model.AccountKind
	if current, ok, _ := sessions.Load(); ok {
		kind = model.AccountKind(current.AccountKind)
	}
	decision := nav.Route(kind, *path)
	if decision.Redirect == "" {
		fmt.Printf("%s is reachable (subtree %s)\n", *path, decision.Subtree)
	} else {
		fmt.Printf("%s redirects to %s\n", *path, decision.Redirect)
	}
	return nil
}

func cmdSchools(ctx context.Context, client *api.Client) error {
	schools, err := client.ListSchools(ctx)
	if err != nil {
		return describeErr(err)
	}
	for _, school := range schools {
		fmt.Printf("%s  %-12s %-10s %s\n", school.ID, school.Code, school.Type, school.Name)
	}
	fmt.Printf("%d schools\n", len(schools))
	return nil
}

func cmdTeachers(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("teachers", flag.ExitOnError)
	schoolID := fs.String("school", "", "filter by school id")
	query := fs.String("q", "", "name/email search")
	activeFlag := fs.String("active", "", "true|false")
	limit := fs.Int("limit", 50, "page size")
	offset := fs.Int("offset", 0, "page offset")
	fs.Parse(args)

	filter := api.TeacherFilter{SchoolID: *schoolID, Query: *query, Limit: *limit, Offset: *offset}
	if *activeFlag != "" {
		active := *activeFlag == "true"
		filter.Active = &active
	}

	page, err := client.ListTeachers(ctx, filter)
	if err != nil {
		return describeErr(err)
	}
	for _, t := range page.Items {
		state := "active"
		if !t.Active {
			state = "inactive"
		}
		fmt.Printf("%s  %-10s %-8s %s %s <%s>\n", t.ID, t.EmployeeNo, state, t.FirstName, t.LastName, t.Email)
	}
	fmt.Printf("%d of %d (offset %d)\n", len(page.Items), page.Total, page.Offset)
	return nil
}

func cmdClasses(ctx context.Context, client *api.Client) error {
	classes, err := client.TeacherClasses(ctx)
	if err != nil {
		return describeErr(err)
	}
	for _, class := range classes {
		subject := ""
		if class.Subject != nil {
			subject = " " + *class.Subject
		}
		fmt.Printf("%s  grade %s section %s, year %s%s\n",
			class.ClassSectionID, class.Grade, class.SectionName, class.AcademicYear, subject)
	}
	return nil
}

func markKey(fs *flag.FlagSet, args []string) (attendance.Key, error) {
	classSection := fs.String("class", "", "class section id")
	year := fs.String("year", "", "academic year id")
	date := fs.String("date", time.Now().Format("2006-01-02"), "date (YYYY-MM-DD)")
	fs.Parse(args)

	key := attendance.Key{ClassSectionID: *classSection, AcademicYearID: *year, Date: *date}
	if key.ClassSectionID == "" || key.AcademicYearID == "" {
		return key, errors.New("-class and -year are required")
	}
	return key, nil
}

func newMachine(client *api.Client) *attendance.Machine {
	roster := syncdata.NewResource(rosterTTL, client.ClassStudents)
	return attendance.NewMachine(roster, client.MarkAttendance)
}

func cmdRoster(ctx context.Context, client *api.Client, args []string) error {
	key, err := markKey(flag.NewFlagSet("roster", flag.ExitOnError), args)
	if err != nil {
		return err
	}

	machine := newMachine(client)
	if err := machine.Load(ctx, key); err != nil {
		return describeErr(err)
	}
	for _, student := range machine.Students() {
		mark := "unmarked"
		if status, remark, ok := machine.MarkFor(student.ID); ok {
			mark = string(status)
			if remark != "" {
				mark += " (" + remark + ")"
			}
		}
		fmt.Printf("%s  %-20s %s\n", student.ID, student.FirstName+" "+student.LastName, mark)
	}
	fmt.Printf("%d unmarked\n", machine.Unmarked())
	return nil
}

func cmdMark(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("mark", flag.ExitOnError)
	absent := fs.String("absent", "", "comma-separated student ids to mark absent")
	remark := fs.String("remark", "", "remark applied to every absent student")
	key, err := markKey(fs, args)
	if err != nil {
		return err
	}

	machine := newMachine(client)
	if err := machine.Load(ctx, key); err != nil {
		return describeErr(err)
	}

	for _, id := range splitIDs(*absent) {
		if err := machine.Mark(id, model.StatusAbsent); err != nil {
			return fmt.Errorf("mark %s: %w", id, err)
		}
		if *remark != "" {
			if err := machine.SetRemark(id, *remark); err != nil {
				return err
			}
		}
	}
	if err := machine.MarkAllPresent(); err != nil {
		return err
	}

	receipt, err := machine.Submit(ctx)
	if err != nil {
		var incomplete *attendance.IncompleteRosterError
		if errors.As(err, &incomplete) {
			return fmt.Errorf("%d students still unmarked", incomplete.Remaining)
		}
		return describeErr(err)
	}
	fmt.Printf("saved: %d present, %d absent\n", receipt.Present, receipt.Absent)
	return nil
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

// describeErr turns API errors into short operator-facing messages.
func describeErr(err error) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Kind {
	case api.KindUnauthenticated:
		return errors.New("not signed in or session expired, run: portal login")
	case api.KindForbidden:
		return errors.New("not allowed for your role or school scope")
	case api.KindValidation:
		if len(apiErr.Fields) > 0 {
			parts := make([]string, 0, len(apiErr.Fields))
			for field, reason := range apiErr.Fields {
				parts = append(parts, field+": "+reason)
			}
			return errors.New("invalid input: " + strings.Join(parts, ", "))
		}
		return errors.New("invalid input")
	case api.KindTransport:
		return fmt.Errorf("server unreachable: %v", errors.Unwrap(apiErr))
	default:
		return err
	}
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
