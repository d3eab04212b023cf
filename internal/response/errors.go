package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrUnknownClass       ErrCode = "UNKNOWN_CLASS"
	ErrAdminDisabled      ErrCode = "ADMIN_LOGIN_DISABLED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotAvailable   ErrCode = "EXAM_NOT_AVAILABLE"
	ErrInvalidEntryToken  ErrCode = "INVALID_ENTRY_TOKEN"
	ErrInvalidState       ErrCode = "INVALID_STATE"
	ErrSessionClosed      ErrCode = "SESSION_CLOSED"
	ErrNotNativeExam      ErrCode = "NOT_NATIVE_EXAM"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrIndexOutOfRange    ErrCode = "INDEX_OUT_OF_RANGE"
	ErrFinishNotRequested ErrCode = "FINISH_NOT_REQUESTED"
	ErrSubmissionInFlight ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrSubmissionFailed   ErrCode = "SUBMISSION_FAILED"
	ErrNothingToRetry     ErrCode = "NOTHING_TO_RETRY"
	ErrCatalogUnavailable ErrCode = "CATALOG_UNAVAILABLE"

	// ─── Monitoring ────────────────────────────────────────────────────
	ErrScoreSyncNative ErrCode = "SCORE_SYNC_NATIVE_EXAM"
	ErrResultNotFound  ErrCode = "RESULT_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Nama pengguna atau kata sandi salah."
	case ErrUnknownClass:
		return "Kelas tidak terdaftar."
	case ErrAdminDisabled:
		return "Login administrator tidak diaktifkan."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrInvalidEntryToken:
		return "Token masuk ujian tidak valid."
	case ErrInvalidState:
		return "Tindakan ini tidak dapat dilakukan pada tahap ujian saat ini."
	case ErrSessionClosed:
		return "Sesi ujian telah ditutup."
	case ErrNotNativeExam:
		return "Ujian ini dikerjakan melalui formulir eksternal."
	case ErrUnknownQuestion:
		return "Soal tidak ditemukan dalam ujian ini."
	case ErrIndexOutOfRange:
		return "Nomor soal di luar jangkauan."
	case ErrFinishNotRequested:
		return "Konfirmasi selesai belum diminta."
	case ErrSubmissionInFlight:
		return "Jawaban sedang dikirim. Mohon tunggu."
	case ErrSubmissionFailed:
		return "Gagal mengirim hasil ujian. Silakan coba lagi."
	case ErrNothingToRetry:
		return "Tidak ada pengiriman yang perlu diulang."
	case ErrCatalogUnavailable:
		return "Data ujian tidak dapat dimuat. Silakan coba lagi."

	// ─── Monitoring ────────────────────────────────────────────────────
	case ErrScoreSyncNative:
		return "Nilai ujian bawaan dihitung otomatis dan tidak dapat diubah."
	case ErrResultNotFound:
		return "Hasil ujian tidak ditemukan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
