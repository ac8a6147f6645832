package calendar

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/herhealth/clinic/internal/domain/doctor"
	"github.com/herhealth/clinic/internal/platform/db"
	"github.com/herhealth/clinic/pkg/wallclock"
)

// -- Mock Repositories --

type mockCalendarRepo struct {
	cals map[uuid.UUID]*Calendar
}

func newMockCalendarRepo() *mockCalendarRepo {
	return &mockCalendarRepo{cals: make(map[uuid.UUID]*Calendar)}
}

func (m *mockCalendarRepo) Create(_ context.Context, c *Calendar) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	m.cals[c.ID] = c
	return nil
}

func (m *mockCalendarRepo) GetByID(_ context.Context, id uuid.UUID) (*Calendar, error) {
	c, ok := m.cals[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCalendarRepo) Update(_ context.Context, c *Calendar) error {
	if _, ok := m.cals[c.ID]; !ok {
		return db.ErrNotFound
	}
	m.cals[c.ID] = c
	return nil
}

func (m *mockCalendarRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.cals[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.cals, id)
	return nil
}

func (m *mockCalendarRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Calendar, error) {
	var result []*Calendar
	for _, c := range m.cals {
		if c.DoctorID == doctorID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

type dayKey struct {
	calendarID uuid.UUID
	day        int
}

type mockWorkingHourRepo struct {
	hours map[dayKey]*WorkingHour
}

func newMockWorkingHourRepo() *mockWorkingHourRepo {
	return &mockWorkingHourRepo{hours: make(map[dayKey]*WorkingHour)}
}

func (m *mockWorkingHourRepo) Upsert(_ context.Context, w *WorkingHour) error {
	k := dayKey{w.CalendarID, w.DayOfWeek}
	if existing, ok := m.hours[k]; ok {
		w.ID = existing.ID
	} else if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	m.hours[k] = w
	return nil
}

func (m *mockWorkingHourRepo) GetForDay(_ context.Context, calendarID uuid.UUID, day int) (*WorkingHour, error) {
	w, ok := m.hours[dayKey{calendarID, day}]
	if !ok {
		return nil, db.ErrNotFound
	}
	return w, nil
}

func (m *mockWorkingHourRepo) ListByCalendar(_ context.Context, calendarID uuid.UUID) ([]*WorkingHour, error) {
	var result []*WorkingHour
	for k, w := range m.hours {
		if k.calendarID == calendarID {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DayOfWeek < result[j].DayOfWeek })
	return result, nil
}

type mockSlotConfigRepo struct {
	configs []*TimeSlotConfig
}

func (m *mockSlotConfigRepo) Upsert(_ context.Context, c *TimeSlotConfig) error {
	for i, existing := range m.configs {
		if existing.CalendarID == c.CalendarID && existing.IsActive {
			c.ID = existing.ID
			m.configs[i] = c
			return nil
		}
	}
	c.ID = uuid.New()
	m.configs = append(m.configs, c)
	return nil
}

func (m *mockSlotConfigRepo) ListByCalendar(_ context.Context, calendarID uuid.UUID) ([]*TimeSlotConfig, error) {
	var result []*TimeSlotConfig
	for _, c := range m.configs {
		if c.CalendarID == calendarID {
			result = append(result, c)
		}
	}
	return result, nil
}

type mockExceptionRepo struct {
	items map[uuid.UUID]*Exception
}

func newMockExceptionRepo() *mockExceptionRepo {
	return &mockExceptionRepo{items: make(map[uuid.UUID]*Exception)}
}

func (m *mockExceptionRepo) Create(_ context.Context, e *Exception) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.items[e.ID] = e
	return nil
}

func (m *mockExceptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Exception, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return e, nil
}

func (m *mockExceptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockExceptionRepo) ListByCalendar(_ context.Context, calendarID uuid.UUID) ([]*Exception, error) {
	var result []*Exception
	for _, e := range m.items {
		if e.CalendarID == calendarID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDatetime.Before(result[j].StartDatetime) })
	return result, nil
}

func (m *mockExceptionRepo) ListOverlapping(ctx context.Context, calendarID uuid.UUID, from, to wallclock.DateTime) ([]*Exception, error) {
	all, _ := m.ListByCalendar(ctx, calendarID)
	var result []*Exception
	for _, e := range all {
		if e.Overlaps(from, to) {
			result = append(result, e)
		}
	}
	return result, nil
}

type mockDoctors struct {
	ids map[uuid.UUID]bool
}

func (m *mockDoctors) GetDoctor(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	if !m.ids[id] {
		return nil, db.ErrNotFound
	}
	return &doctor.Doctor{ID: id, Name: "Dr. Test", Active: true}, nil
}

type testEnv struct {
	svc        *Service
	doctorID   uuid.UUID
	calendars  *mockCalendarRepo
	exceptions *mockExceptionRepo
}

func newTestEnv() *testEnv {
	doctorID := uuid.New()
	cals := newMockCalendarRepo()
	exc := newMockExceptionRepo()
	svc := NewService(cals, newMockWorkingHourRepo(), &mockSlotConfigRepo{}, exc,
		&mockDoctors{ids: map[uuid.UUID]bool{doctorID: true}}, db.NoTx{})
	return &testEnv{svc: svc, doctorID: doctorID, calendars: cals, exceptions: exc}
}

func newTestService() *Service {
	return newTestEnv().svc
}

func (env *testEnv) calendar(t *testing.T) *Calendar {
	t.Helper()
	cal := &Calendar{DoctorID: env.doctorID, Name: "Main clinic"}
	if err := env.svc.CreateCalendar(context.Background(), cal); err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	return cal
}

// -- Calendar --

func TestCreateCalendar(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	if cal.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if cal.Color != defaultColor {
		t.Errorf("expected default color, got %q", cal.Color)
	}
	if !cal.IsActive {
		t.Error("expected calendar to be active")
	}
}

func TestCreateCalendar_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if err := env.svc.CreateCalendar(ctx, &Calendar{Name: "x"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for missing doctor, got %v", err)
	}
	if err := env.svc.CreateCalendar(ctx, &Calendar{DoctorID: env.doctorID, Name: " "}); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for blank name, got %v", err)
	}
	if err := env.svc.CreateCalendar(ctx, &Calendar{DoctorID: uuid.New(), Name: "x"}); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown doctor, got %v", err)
	}
}

func TestListDoctorCalendars(t *testing.T) {
	env := newTestEnv()
	env.calendar(t)
	env.calendar(t)

	cals, err := env.svc.ListDoctorCalendars(context.Background(), env.doctorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cals) != 2 {
		t.Errorf("expected 2 calendars, got %d", len(cals))
	}

	if _, err := env.svc.ListDoctorCalendars(context.Background(), uuid.New()); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown doctor, got %v", err)
	}
}

// -- Working hours --

func TestSetWorkingHours(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	ctx := context.Background()

	hours := []*WorkingHour{
		{DayOfWeek: 1, StartTime: wallclock.MustTimeOfDay("09:00"), EndTime: wallclock.MustTimeOfDay("17:00"), IsActive: true},
		{DayOfWeek: 4, IsActive: true, IsClosed: true},
	}
	if err := env.svc.SetWorkingHours(ctx, cal.ID, hours); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mon, err := env.svc.WorkingHourForDay(ctx, cal.ID, 1)
	if err != nil || mon == nil {
		t.Fatalf("expected Monday hours, got %v, %v", mon, err)
	}
	if !mon.Open() {
		t.Error("expected Monday to be open")
	}

	thu, _ := env.svc.WorkingHourForDay(ctx, cal.ID, 4)
	if thu.Open() {
		t.Error("expected Thursday to be closed")
	}

	sun, err := env.svc.WorkingHourForDay(ctx, cal.ID, 0)
	if err != nil || sun != nil {
		t.Errorf("expected nil for unconfigured day, got %v, %v", sun, err)
	}

	// Re-setting a day replaces it.
	hours[0].EndTime = wallclock.MustTimeOfDay("13:00")
	env.svc.SetWorkingHours(ctx, cal.ID, hours[:1])
	list, _ := env.svc.ListWorkingHours(ctx, cal.ID)
	if len(list) != 2 {
		t.Fatalf("expected 2 working hour rows, got %d", len(list))
	}
	if list[0].EndTime.String() != "13:00" {
		t.Errorf("expected Monday to end at 13:00, got %s", list[0].EndTime)
	}
}

func TestSetWorkingHours_Validation(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		hours []*WorkingHour
	}{
		{"day out of range", []*WorkingHour{{DayOfWeek: 7, StartTime: 540, EndTime: 600}}},
		{"end before start", []*WorkingHour{{DayOfWeek: 1, StartTime: 600, EndTime: 540}}},
		{"duplicate day", []*WorkingHour{{DayOfWeek: 2, StartTime: 540, EndTime: 600}, {DayOfWeek: 2, IsClosed: true}}},
		{"start at midnight closing", []*WorkingHour{{DayOfWeek: 1, StartTime: wallclock.EndOfDay, EndTime: wallclock.EndOfDay}}},
		{"end past midnight", []*WorkingHour{{DayOfWeek: 1, StartTime: 540, EndTime: wallclock.EndOfDay + 30}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := env.svc.SetWorkingHours(ctx, cal.ID, tt.hours); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}

	closed := []*WorkingHour{{DayOfWeek: 3, IsClosed: true}}
	if err := env.svc.SetWorkingHours(ctx, cal.ID, closed); err != nil {
		t.Errorf("closed day should not need times: %v", err)
	}
	if err := env.svc.SetWorkingHours(ctx, uuid.New(), closed); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown calendar, got %v", err)
	}
}

func TestSetWorkingHours_OpenUntilMidnight(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	ctx := context.Background()

	hours := []*WorkingHour{{DayOfWeek: 5, StartTime: wallclock.MustTimeOfDay("18:00"), EndTime: wallclock.MustTimeOfDay("24:00:00"), IsActive: true}}
	if err := env.svc.SetWorkingHours(ctx, cal.ID, hours); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fri, err := env.svc.WorkingHourForDay(ctx, cal.ID, 5)
	if err != nil || fri == nil {
		t.Fatalf("expected Friday hours, got %v, %v", fri, err)
	}
	if fri.EndTime != wallclock.EndOfDay || fri.EndTime.String() != "24:00" {
		t.Errorf("expected Friday to close at 24:00, got %s", fri.EndTime)
	}
}

// -- Slot config --

func TestGetSlotConfig_Default(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)

	cfg, err := env.svc.GetSlotConfig(context.Background(), cal.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SlotDurationMinutes != 30 || cfg.BreakDurationMinutes != 0 || cfg.MaxAppointmentsPerSlot != 1 {
		t.Errorf("unexpected default config: %+v", cfg)
	}
	if cfg.ID != uuid.Nil {
		t.Error("expected default config to have no ID")
	}
}

func TestSetSlotConfig(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	ctx := context.Background()

	cfg := &TimeSlotConfig{CalendarID: cal.ID, SlotDurationMinutes: 20, BreakDurationMinutes: 10}
	if err := env.svc.SetSlotConfig(ctx, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxAppointmentsPerSlot != 1 {
		t.Errorf("expected capacity to default to 1, got %d", cfg.MaxAppointmentsPerSlot)
	}

	got, _ := env.svc.PrimarySlotConfig(ctx, cal.ID)
	if got == nil || got.Step() != 30 {
		t.Errorf("expected primary config with step 30, got %+v", got)
	}

	second := &TimeSlotConfig{CalendarID: cal.ID, SlotDurationMinutes: 45, MaxAppointmentsPerSlot: 2}
	env.svc.SetSlotConfig(ctx, second)
	if second.ID != cfg.ID {
		t.Error("expected upsert to replace the primary config")
	}
}

func TestValidateSlotConfig(t *testing.T) {
	tests := []TimeSlotConfig{
		{SlotDurationMinutes: 0, MaxAppointmentsPerSlot: 1},
		{SlotDurationMinutes: 30, BreakDurationMinutes: -5, MaxAppointmentsPerSlot: 1},
		{SlotDurationMinutes: 30, MaxAppointmentsPerSlot: 0},
		{SlotDurationMinutes: MaxSlotMinutes + 1, MaxAppointmentsPerSlot: 1},
		{SlotDurationMinutes: math.MaxInt, BreakDurationMinutes: math.MaxInt, MaxAppointmentsPerSlot: 1},
		{SlotDurationMinutes: 30, BreakDurationMinutes: MaxSlotMinutes + 1, MaxAppointmentsPerSlot: 1},
		{SlotDurationMinutes: 30, MaxAppointmentsPerSlot: MaxSlotCapacity + 1},
	}
	for _, cfg := range tests {
		if err := ValidateSlotConfig(&cfg); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for %+v, got %v", cfg, err)
		}
	}
	ok := DefaultSlotConfig()
	if err := ValidateSlotConfig(&ok); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
	widest := TimeSlotConfig{SlotDurationMinutes: MaxSlotMinutes, BreakDurationMinutes: MaxSlotMinutes, MaxAppointmentsPerSlot: MaxSlotCapacity}
	if err := ValidateSlotConfig(&widest); err != nil {
		t.Errorf("config at the bounds should be valid: %v", err)
	}
	if widest.Step() <= 0 {
		t.Errorf("expected a positive step, got %d", widest.Step())
	}
}

func TestPrimary(t *testing.T) {
	inactive := &TimeSlotConfig{SlotDurationMinutes: 15}
	first := &TimeSlotConfig{SlotDurationMinutes: 20, IsActive: true}
	second := &TimeSlotConfig{SlotDurationMinutes: 40, IsActive: true}

	if got := Primary([]*TimeSlotConfig{inactive, first, second}); got != first {
		t.Errorf("expected first active config, got %+v", got)
	}
	if got := Primary([]*TimeSlotConfig{inactive}); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

// -- Exceptions --

func TestCreateException(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	ctx := context.Background()

	e := &Exception{
		CalendarID:    cal.ID,
		StartDatetime: wallclock.MustDateTime("2024-05-15T12:00:00"),
		EndDatetime:   wallclock.MustDateTime("2024-05-15T14:00:00"),
	}
	if err := env.svc.CreateException(ctx, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ExceptionType != ExceptionBlock {
		t.Errorf("expected type to default to block, got %q", e.ExceptionType)
	}
	if e.Label() != "block" {
		t.Errorf("expected label block, got %q", e.Label())
	}
}

func TestCreateException_Validation(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	ctx := context.Background()
	start := wallclock.MustDateTime("2024-05-15T12:00:00")

	tests := []*Exception{
		{CalendarID: cal.ID, ExceptionType: "lunch", StartDatetime: start, EndDatetime: start.AddMinutes(60)},
		{CalendarID: cal.ID, ExceptionType: ExceptionVacation, StartDatetime: start, EndDatetime: start},
		{CalendarID: cal.ID, ExceptionType: ExceptionVacation, StartDatetime: start},
	}
	for _, e := range tests {
		if err := env.svc.CreateException(ctx, e); !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid for %+v, got %v", e, err)
		}
	}
}

func TestListExceptions_Range(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	ctx := context.Background()

	reason := "Conference"
	env.svc.CreateException(ctx, &Exception{CalendarID: cal.ID, ExceptionType: ExceptionVacation, Reason: &reason,
		StartDatetime: wallclock.MustDateTime("2024-05-14T00:00:00"), EndDatetime: wallclock.MustDateTime("2024-05-16T00:00:00")})
	env.svc.CreateException(ctx, &Exception{CalendarID: cal.ID, ExceptionType: ExceptionHoliday,
		StartDatetime: wallclock.MustDateTime("2024-06-01T00:00:00"), EndDatetime: wallclock.MustDateTime("2024-06-02T00:00:00")})

	all, _ := env.svc.ListExceptions(ctx, cal.ID, wallclock.DateTime{}, wallclock.DateTime{})
	if len(all) != 2 {
		t.Fatalf("expected 2 exceptions, got %d", len(all))
	}

	may, err := env.svc.ListExceptions(ctx, cal.ID,
		wallclock.MustDateTime("2024-05-15T00:00:00"), wallclock.MustDateTime("2024-05-16T00:00:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(may) != 1 || may[0].Label() != "Conference" {
		t.Errorf("expected the vacation only, got %+v", may)
	}

	if _, err := env.svc.ListExceptions(ctx, cal.ID,
		wallclock.MustDateTime("2024-05-16T00:00:00"), wallclock.MustDateTime("2024-05-15T00:00:00")); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for reversed range, got %v", err)
	}
}

func TestDeleteException_WrongCalendar(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	other := env.calendar(t)
	ctx := context.Background()

	e := &Exception{CalendarID: cal.ID, ExceptionType: ExceptionBlock,
		StartDatetime: wallclock.MustDateTime("2024-05-15T12:00:00"), EndDatetime: wallclock.MustDateTime("2024-05-15T13:00:00")}
	env.svc.CreateException(ctx, e)

	if err := env.svc.DeleteException(ctx, other.ID, e.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := env.svc.DeleteException(ctx, cal.ID, e.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.exceptions.items) != 0 {
		t.Error("expected exception to be deleted")
	}
}

func TestExceptionCovers(t *testing.T) {
	e := &Exception{
		StartDatetime: wallclock.MustDateTime("2024-05-15T12:00:00"),
		EndDatetime:   wallclock.MustDateTime("2024-05-15T13:00:00"),
	}
	if !e.Covers(wallclock.MustDateTime("2024-05-15T12:00:00")) {
		t.Error("start is inclusive")
	}
	if !e.Covers(wallclock.MustDateTime("2024-05-15T12:59:59")) {
		t.Error("expected 12:59:59 to be covered")
	}
	if e.Covers(wallclock.MustDateTime("2024-05-15T13:00:00")) {
		t.Error("end is exclusive")
	}
}

func TestImportExceptions_SkipsDuplicates(t *testing.T) {
	env := newTestEnv()
	cal := env.calendar(t)
	ctx := context.Background()

	summary := "Hospital rounds"
	mk := func() []*Exception {
		return []*Exception{
			{ExceptionType: ExceptionBlock, Reason: &summary,
				StartDatetime: wallclock.MustDateTime("2024-05-15T08:00:00"), EndDatetime: wallclock.MustDateTime("2024-05-15T09:30:00")},
			{ExceptionType: ExceptionBlock, Reason: &summary,
				StartDatetime: wallclock.MustDateTime("2024-05-16T08:00:00"), EndDatetime: wallclock.MustDateTime("2024-05-16T09:30:00")},
		}
	}

	n, err := env.svc.ImportExceptions(ctx, cal.ID, mk())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 created, got %d", n)
	}

	n, err = env.svc.ImportExceptions(ctx, cal.ID, mk())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected re-import to create nothing, got %d", n)
	}
	if len(env.exceptions.items) != 2 {
		t.Errorf("expected 2 stored exceptions, got %d", len(env.exceptions.items))
	}
}

func TestImportExceptions_UnknownCalendar(t *testing.T) {
	env := newTestEnv()
	in := []*Exception{{ExceptionType: ExceptionBlock,
		StartDatetime: wallclock.MustDateTime("2024-05-15T08:00:00"), EndDatetime: wallclock.MustDateTime("2024-05-15T09:00:00")}}
	if _, err := env.svc.ImportExceptions(context.Background(), uuid.New(), in); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func mustRange(start, end string) (wallclock.DateTime, wallclock.DateTime) {
	return wallclock.MustDateTime(start), wallclock.MustDateTime(end)
}
