package model

// DefaultAge 年龄列为空或无法解析时使用的默认值
const DefaultAge = 20

// Student 实习学生
type Student struct {
	ID            int64  `json:"id,omitempty" db:"id"`
	StudentNumber string `json:"studentNumber" db:"student_number"` // 学籍番号（自然主键）
	Name          string `json:"name" db:"name"`
	Kana          string `json:"kana" db:"kana"`
	Hospital      string `json:"hospital" db:"hospital"`    // 实习医院
	DayNight      string `json:"dayNight" db:"day_night"`   // 昼间部/夜间部
	GroupName     string `json:"groupName" db:"group_name"` // 班
	Gender        string `json:"gender" db:"gender"`
	BirthDate     string `json:"birthDate,omitempty" db:"birth_date"`
	Age           int    `json:"age" db:"age"`

	RowNo int `json:"-" db:"-"` // 源表格行号（1 起），仅用于日志
}

// ScheduleEntry 学生某一天的日程记号
type ScheduleEntry struct {
	StudentNumber string `json:"studentNumber"`
	Date          string `json:"date"`         // 源表格中的日期标签，如 "1/15"
	ScheduleDate  string `json:"scheduleDate"` // 入库值：有年份时为 YYYY-MM-DD，否则同 Date
	Symbol        string `json:"symbol"`
	Description   string `json:"description"`
}

// ScheduleRow 已解析出 student_id 的日程行（写库用）
type ScheduleRow struct {
	StudentID    int64  `db:"student_id"`
	ScheduleDate string `db:"schedule_date"`
	Symbol       string `db:"symbol"`
	Description  string `db:"description"`
}

// Dataset 一次导入的完整数据
type Dataset struct {
	Students []Student       `json:"students"`
	Entries  []ScheduleEntry `json:"entries"`
	Dates    []string        `json:"dates"` // 按列顺序的日期标签
}

// EntriesByStudent 按学籍番号分组日程，保持原有顺序
func (d *Dataset) EntriesByStudent() map[string][]ScheduleEntry {
	out := make(map[string][]ScheduleEntry, len(d.Students))
	for _, e := range d.Entries {
		out[e.StudentNumber] = append(out[e.StudentNumber], e)
	}
	return out
}

// StudentNumbers 学籍番号集合
func (d *Dataset) StudentNumbers() map[string]struct{} {
	out := make(map[string]struct{}, len(d.Students))
	for _, s := range d.Students {
		out[s.StudentNumber] = struct{}{}
	}
	return out
}
