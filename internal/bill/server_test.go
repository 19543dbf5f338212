package bill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dimasfr/splitbill/internal/auth"
	"github.com/dimasfr/splitbill/internal/extraction"
)

// memUserStore is an in-memory implementation of auth.UserStore
type memUserStore struct {
	users map[string]*auth.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*auth.User)}
}

func (m *memUserStore) CreateUser(user *auth.User) error {
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return auth.ErrEmailTaken
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memUserStore) GetUserByEmail(email string) (*auth.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, email)
}

func (m *memUserStore) GetUserByID(id string) (*auth.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, id)
	}
	return user, nil
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		recognizer  *mockRecognizer
		extractor   *mockExtractor
		authService *auth.Service
		server      *Server
		recorder    *httptest.ResponseRecorder
		token       string
	)

	doJSON := func(method, path string, body interface{}) *http.Request {
		payload, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(method, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	authed := func(req *http.Request) *http.Request {
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	multipartUpload := func(field, filename, contentType string, data []byte) *http.Request {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		req := httptest.NewRequest("POST", "/ocr/upload", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return authed(req)
	}

	decodeBody := func() map[string]interface{} {
		var body map[string]interface{}
		Expect(json.NewDecoder(recorder.Body).Decode(&body)).To(Succeed())
		return body
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = &mockStorage{}
		recognizer = &mockRecognizer{text: "INDOMARET\nNASI GORENG 1 12.500\nTOTAL 12.500"}
		extractor = &mockExtractor{
			data: &extraction.BillData{
				StoreName: "INDOMARET",
				Items: []extraction.Item{
					{Name: "NASI GORENG", Quantity: 1, Price: 12500},
				},
				Total: 12500,
			},
		}

		users := newMemUserStore()
		authService = auth.NewService(users, auth.NewTokenManager("test-secret", time.Hour))

		service := NewServiceWithDeps(db, storage, recognizer, extractor,
			&mockIDGenerator{}, &mockTimeSource{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(authService, service, http.NewServeMux())
		recorder = httptest.NewRecorder()

		_, err := authService.Register("budi@example.com", "rahasia123")
		Expect(err).NotTo(HaveOccurred())
		token, err = authService.Login("budi@example.com", "rahasia123")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("POST /auth/register", func() {
		It("should create an account", func() {
			server.ServeHTTP(recorder, doJSON("POST", "/auth/register",
				map[string]string{"email": "ani@example.com", "password": "rahasia"}))
			Expect(recorder.Code).To(Equal(http.StatusCreated))
			Expect(decodeBody()["message"]).To(Equal("Pengguna berhasil terdaftar."))
		})

		It("should reject a duplicate email with 409", func() {
			server.ServeHTTP(recorder, doJSON("POST", "/auth/register",
				map[string]string{"email": "budi@example.com", "password": "rahasia"}))
			Expect(recorder.Code).To(Equal(http.StatusConflict))
			Expect(decodeBody()["error"]).To(Equal("Email sudah terdaftar."))
		})

		It("should reject missing fields with 400", func() {
			server.ServeHTTP(recorder, doJSON("POST", "/auth/register",
				map[string]string{"email": "ani@example.com"}))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject a malformed body with 400", func() {
			req := httptest.NewRequest("POST", "/auth/register", strings.NewReader("{not json"))
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /auth/login", func() {
		It("should return an access token for valid credentials", func() {
			server.ServeHTTP(recorder, doJSON("POST", "/auth/login",
				map[string]string{"email": "budi@example.com", "password": "rahasia123"}))
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(decodeBody()["accessToken"]).NotTo(BeEmpty())
		})

		It("should return 401 for a wrong password", func() {
			server.ServeHTTP(recorder, doJSON("POST", "/auth/login",
				map[string]string{"email": "budi@example.com", "password": "salah"}))
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeBody()["error"]).To(Equal("Email atau password salah."))
		})

		It("should return 401 for an unknown email", func() {
			server.ServeHTTP(recorder, doJSON("POST", "/auth/login",
				map[string]string{"email": "nobody@example.com", "password": "rahasia123"}))
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("authentication middleware", func() {
		It("should reject a request without a token", func() {
			server.ServeHTTP(recorder, httptest.NewRequest("GET", "/ocr/my-bills", nil))
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeBody()["error"]).To(Equal("Token tidak ditemukan."))
		})

		It("should reject a garbage token", func() {
			req := httptest.NewRequest("GET", "/ocr/my-bills", nil)
			req.Header.Set("Authorization", "Bearer not.a.token")
			server.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeBody()["error"]).To(Equal("Token tidak valid atau telah kedaluwarsa."))
		})
	})

	Describe("POST /ocr/upload", func() {
		It("should return the persisted bill with 201", func() {
			server.ServeHTTP(recorder, multipartUpload("file", "struk.jpg", "image/jpeg", jpegBytes))
			Expect(recorder.Code).To(Equal(http.StatusCreated))

			var bill Bill
			Expect(json.NewDecoder(recorder.Body).Decode(&bill)).To(Succeed())
			Expect(bill.Status).To(Equal(StatusCompleted))
			Expect(bill.StoreName).To(Equal("INDOMARET"))
			Expect(bill.Total).To(Equal(12500.0))
		})

		It("should return 400 when the file part is missing", func() {
			server.ServeHTTP(recorder, multipartUpload("wrong-field", "struk.jpg", "image/jpeg", jpegBytes))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeBody()["error"]).To(Equal("File struk tidak ditemukan di form."))
		})

		It("should return 400 for an empty file", func() {
			server.ServeHTTP(recorder, multipartUpload("file", "struk.jpg", "image/jpeg", nil))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeBody()["error"]).To(Equal("File struk kosong."))
		})

		It("should return 400 for an unsupported format", func() {
			server.ServeHTTP(recorder, multipartUpload("file", "struk.txt", "text/plain", []byte("bukan gambar")))
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeBody()["error"]).To(Equal("Format file tidak didukung."))
		})

		It("should return 500 when the pipeline fails past the upload", func() {
			recognizer.err = fmt.Errorf("ocr unavailable")
			server.ServeHTTP(recorder, multipartUpload("file", "struk.jpg", "image/jpeg", jpegBytes))
			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
			Expect(decodeBody()["error"]).To(Equal("Gagal memproses struk setelah diunggah."))
		})
	})

	Describe("GET /ocr/my-bills", func() {
		It("should list only the caller's bills", func() {
			owner, err := authService.Authenticate(token)
			Expect(err).NotTo(HaveOccurred())
			db.bills["mine"] = &Bill{ID: "mine", OwnerID: owner.ID}
			db.bills["theirs"] = &Bill{ID: "theirs", OwnerID: "someone-else"}

			server.ServeHTTP(recorder, authed(httptest.NewRequest("GET", "/ocr/my-bills", nil)))
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var bills []Bill
			Expect(json.NewDecoder(recorder.Body).Decode(&bills)).To(Succeed())
			Expect(bills).To(HaveLen(1))
			Expect(bills[0].ID).To(Equal("mine"))
		})
	})

	Describe("GET /ocr/{id}", func() {
		It("should return 404 for a missing bill", func() {
			server.ServeHTTP(recorder, authed(httptest.NewRequest("GET", "/ocr/missing", nil)))
			Expect(recorder.Code).To(Equal(http.StatusNotFound))
			Expect(decodeBody()["error"]).To(Equal("Tagihan tidak ditemukan."))
		})

		It("should return 401 for someone else's bill", func() {
			db.bills["theirs"] = &Bill{ID: "theirs", OwnerID: "someone-else"}
			server.ServeHTTP(recorder, authed(httptest.NewRequest("GET", "/ocr/theirs", nil)))
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeBody()["error"]).To(Equal("Anda tidak memiliki akses ke tagihan ini."))
		})
	})

	Describe("PATCH /ocr/split/{id}", func() {
		It("should update the split and return the bill", func() {
			owner, err := authService.Authenticate(token)
			Expect(err).NotTo(HaveOccurred())
			db.bills["bill-1"] = &Bill{ID: "bill-1", OwnerID: owner.ID, Total: 12500}

			server.ServeHTTP(recorder, authed(doJSON("PATCH", "/ocr/split/bill-1",
				map[string]interface{}{
					"splitDetails": map[string]interface{}{
						"participants": []map[string]interface{}{{"name": "Budi"}},
					},
					"total": 13000,
				})))
			Expect(recorder.Code).To(Equal(http.StatusOK))

			var bill Bill
			Expect(json.NewDecoder(recorder.Body).Decode(&bill)).To(Succeed())
			Expect(bill.Total).To(Equal(13000.0))
			Expect(string(bill.SplitDetails)).To(ContainSubstring("Budi"))
		})
	})

	Describe("DELETE /ocr/{id}", func() {
		It("should delete the bill and confirm", func() {
			owner, err := authService.Authenticate(token)
			Expect(err).NotTo(HaveOccurred())
			db.bills["bill-1"] = &Bill{ID: "bill-1", OwnerID: owner.ID}

			server.ServeHTTP(recorder, authed(httptest.NewRequest("DELETE", "/ocr/bill-1", nil)))
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(decodeBody()["message"]).To(Equal("Transaksi berhasil dihapus."))
			Expect(db.bills).NotTo(HaveKey("bill-1"))
		})
	})
})
