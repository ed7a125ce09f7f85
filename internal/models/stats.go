package models

// SystemStats is the admin dashboard counter payload.
type SystemStats struct {
	TotalUsers           int `db:"total_users" json:"total_users"`
	TotalTeachers        int `db:"total_teachers" json:"total_teachers"`
	TotalStudents        int `db:"total_students" json:"total_students"`
	TotalClasses         int `db:"total_classes" json:"total_classes"`
	TotalTasks           int `db:"total_tasks" json:"total_tasks"`
	TotalAssignments     int `db:"total_assignments" json:"total_assignments"`
	TotalSubmissions     int `db:"total_submissions" json:"total_submissions"`
	CompletedAssignments int `db:"completed_assignments" json:"completed_assignments"`
	OverdueTasks         int `db:"overdue_tasks" json:"overdue_tasks"`
}

// StudentProgress summarises one student's assignment workload for the
// teacher dashboard. Overdue counts use the derived status.
type StudentProgress struct {
	StudentID       string  `db:"student_id" json:"student_id"`
	StudentName     string  `db:"student_name" json:"student_name"`
	TotalTasks      int     `db:"total_tasks" json:"total_tasks"`
	CompletedTasks  int     `db:"completed_tasks" json:"completed_tasks"`
	InProgressTasks int     `db:"in_progress_tasks" json:"in_progress_tasks"`
	OverdueTasks    int     `db:"overdue_tasks" json:"overdue_tasks"`
	CompletionRate  float64 `db:"-" json:"completion_rate"`
}

// TeacherDashboard bundles a teacher's tasks with per-student progress
// across the classes they teach.
type TeacherDashboard struct {
	Tasks    []Task            `json:"tasks"`
	Students []StudentProgress `json:"students"`
}
