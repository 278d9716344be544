package email

const (
	subjectAssignmentFmt   = "Nieuw record toegewezen: %s"
	subjectStageChangedFmt = "Record %s is verplaatst naar %s"
)
