package chat_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/chat"
	"github.com/papercomputeco/parley/pkg/llm"
)

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		upstream *fakeUpstream
		config   chat.Config
		client   *chat.Client
	)

	directive := chat.English.Directive()

	BeforeEach(func() {
		ctx = context.Background()
		upstream = newFakeUpstream()
		config = chat.DefaultConfig()
		config.APIKey = "sk-test"
		config.BaseURL = upstream.URL()
		config.SystemPrompt = "be brief"
		config.RequestTimeout = 5 * time.Second
		client = chat.New(config)
	})

	AfterEach(func() {
		upstream.Close()
	})

	collect := func(s *chat.Stream) ([]string, error) {
		var got []string
		for s.Next() {
			got = append(got, s.Text())
		}
		return got, s.Err()
	}

	Describe("SendStreaming", func() {
		It("yields fragments in order and commits the turn", func() {
			upstream.Handle(streamFrames(
				`{"type":"response.created"}`,
				delta("Hi"),
				delta(" there"),
				`{"type":"response.completed"}`,
				"[DONE]",
			))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())

			fragments, err := collect(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(Equal([]string{"Hi", " there"}))

			// End of stream implies the commit already happened.
			Expect(client.History()).To(Equal([]llm.Message{
				llm.NewUserMessage("Hello" + directive),
				llm.NewAssistantMessage("Hi there"),
			}))
		})

		It("sends the system instruction, turns and sampling settings", func() {
			upstream.Handle(streamFrames("[DONE]"))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			_, err = collect(stream)
			Expect(err).NotTo(HaveOccurred())

			reqs := upstream.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0]).To(HaveKeyWithValue("model", chat.DefaultModel))
			Expect(reqs[0]).To(HaveKeyWithValue("instructions", "be brief"))
			Expect(reqs[0]).To(HaveKeyWithValue("stream", true))
			Expect(reqs[0]).To(HaveKeyWithValue("temperature", 0.5))
			Expect(reqs[0]["input"]).To(Equal([]any{
				map[string]any{"role": "user", "content": "Hello" + directive},
			}))
		})

		It("includes prior turns on the next exchange", func() {
			upstream.Handle(streamFrames(delta("one"), "[DONE]"))
			stream, err := client.SendStreaming(ctx, "first")
			Expect(err).NotTo(HaveOccurred())
			_, err = collect(stream)
			Expect(err).NotTo(HaveOccurred())

			upstream.Handle(streamFrames(delta("two"), "[DONE]"))
			stream, err = client.SendStreaming(ctx, "second")
			Expect(err).NotTo(HaveOccurred())
			_, err = collect(stream)
			Expect(err).NotTo(HaveOccurred())

			input := upstream.Requests()[1]["input"].([]any)
			Expect(input).To(HaveLen(3))
			Expect(input[0]).To(HaveKeyWithValue("content", "first"+directive))
			Expect(input[1]).To(HaveKeyWithValue("role", "assistant"))
			Expect(input[1]).To(HaveKeyWithValue("content", "one"))
			Expect(client.History()).To(HaveLen(4))
		})

		It("fails fast without a credential", func() {
			config.APIKey = "   "
			client = chat.New(config)

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(stream).To(BeNil())
			Expect(err).To(MatchError(llm.ErrEmptyCredential))
			Expect(upstream.Requests()).To(BeEmpty())
			Expect(client.History()).To(BeEmpty())
		})

		It("reports a bad response before any fragment", func() {
			upstream.Handle(respondJSON(http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(stream).To(BeNil())

			var bad *llm.BadResponseError
			Expect(errors.As(err, &bad)).To(BeTrue())
			Expect(bad.StatusCode).To(Equal(429))
			Expect(bad.Message).To(Equal("rate limited"))
			Expect(client.History()).To(BeEmpty())
		})

		It("surfaces a mid-stream error without committing", func() {
			upstream.Handle(streamFrames(
				delta("Hi"),
				`{"type":"response.error","error":{"message":"x"}}`,
				delta("never"),
			))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())

			fragments, err := collect(stream)
			Expect(fragments).To(Equal([]string{"Hi"}))

			var serr *llm.ServerError
			Expect(errors.As(err, &serr)).To(BeTrue())
			Expect(serr.Message).To(Equal("x"))
			Expect(client.History()).To(BeEmpty())
		})

		It("leaves existing history untouched on failure", func() {
			upstream.Handle(streamFrames(delta("ok"), "[DONE]"))
			stream, _ := client.SendStreaming(ctx, "a")
			_, err := collect(stream)
			Expect(err).NotTo(HaveOccurred())
			before := client.History()

			upstream.Handle(streamFrames(delta("partial"), `{"error":{"message":"boom"}}`))
			stream, err = client.SendStreaming(ctx, "b")
			Expect(err).NotTo(HaveOccurred())
			_, err = collect(stream)
			Expect(err).To(HaveOccurred())

			Expect(client.History()).To(Equal(before))
		})

		It("ignores frames after the sentinel", func() {
			upstream.Handle(streamFrames(delta("done"), "[DONE]", delta(" and more")))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			fragments, err := collect(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(Equal([]string{"done"}))
			Expect(client.History()[1].Content).To(Equal("done"))
		})

		It("completes a stream that ends without the sentinel", func() {
			upstream.Handle(streamFrames(delta("a"), delta("b")))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			_, err = collect(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.History()[1].Content).To(Equal("ab"))
		})

		It("decodes chat completions chunks in the chat dialect", func() {
			config.Dialect = chat.DialectChat
			client = chat.New(config)
			upstream.Handle(streamFrames(
				`{"choices":[{"delta":{"role":"assistant"}}]}`,
				`{"choices":[{"delta":{"content":"Na"}}]}`,
				`{"choices":[{"delta":{"content":"maste"}}]}`,
				"[DONE]",
			))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			reply, err := stream.Collect()
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("Namaste"))

			msgs := upstream.Requests()[0]["messages"].([]any)
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0]).To(HaveKeyWithValue("role", "system"))
			Expect(msgs[0]).To(HaveKeyWithValue("content", "be brief"))
		})

		It("tears down the exchange when the consumer walks away", func() {
			released := make(chan struct{})
			upstream.Handle(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprintf(w, "data: %s\n\n", delta("first"))
				w.(http.Flusher).Flush()
				<-r.Context().Done()
				close(released)
			})

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(stream.Next()).To(BeTrue())
			Expect(stream.Text()).To(Equal("first"))

			Expect(stream.Close()).To(Succeed())
			Eventually(released).Should(BeClosed())
			Expect(client.History()).To(BeEmpty())

			// The client is free for the next exchange.
			upstream.Handle(streamFrames("[DONE]"))
			next, err := client.SendStreaming(ctx, "again")
			Expect(err).NotTo(HaveOccurred())
			Expect(next.Close()).To(Succeed())
		})

		It("stops when the iterator loop breaks early", func() {
			upstream.Handle(streamFrames(delta("a"), delta("b"), delta("c"), "[DONE]"))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			for text, err := range stream.Fragments() {
				Expect(err).NotTo(HaveOccurred())
				Expect(text).To(Equal("a"))
				break
			}
			Expect(client.History()).To(BeEmpty())
		})

		It("commits nothing when closed after the last fragment", func() {
			for range 50 {
				upstream.Handle(streamFrames(delta("a"), "[DONE]"))

				stream, err := client.SendStreaming(ctx, "Hello")
				Expect(err).NotTo(HaveOccurred())
				Expect(stream.Next()).To(BeTrue())
				Expect(stream.Text()).To(Equal("a"))

				Expect(stream.Close()).To(Succeed())
				Expect(stream.Err()).To(MatchError(context.Canceled))
				Expect(client.History()).To(BeEmpty())
			}
		})

		It("commits nothing when the loop breaks on the last fragment", func() {
			upstream.Handle(streamFrames(delta("a"), "[DONE]"))

			stream, err := client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			for text := range stream.Fragments() {
				Expect(text).To(Equal("a"))
				break
			}
			Expect(client.History()).To(BeEmpty())

			// Pulling past the last fragment commits.
			upstream.Handle(streamFrames(delta("a"), "[DONE]"))
			stream, err = client.SendStreaming(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(stream.Next()).To(BeTrue())
			Expect(stream.Next()).To(BeFalse())
			Expect(stream.Err()).NotTo(HaveOccurred())
			Expect(client.History()).To(HaveLen(2))
		})

		It("rejects a second exchange while one is in flight", func() {
			hold := make(chan struct{})
			upstream.Handle(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprintf(w, "data: %s\n\n", delta("wait"))
				w.(http.Flusher).Flush()
				select {
				case <-hold:
				case <-r.Context().Done():
				}
			})

			stream, err := client.SendStreaming(ctx, "one")
			Expect(err).NotTo(HaveOccurred())

			_, err = client.SendStreaming(ctx, "two")
			Expect(err).To(MatchError(llm.ErrBusy))
			_, err = client.Send(ctx, "three")
			Expect(err).To(MatchError(llm.ErrBusy))

			close(hold)
			_, err = collect(stream)
			Expect(err).NotTo(HaveOccurred())
		})

		It("applies a language change to the next exchange", func() {
			upstream.Handle(streamFrames("[DONE]"))
			client.SetLanguage(chat.Hindi)
			Expect(client.Language()).To(Equal(chat.Hindi))

			stream, err := client.SendStreaming(ctx, "Namaste")
			Expect(err).NotTo(HaveOccurred())
			_, err = collect(stream)
			Expect(err).NotTo(HaveOccurred())

			input := upstream.Requests()[0]["input"].([]any)
			Expect(input[0]).To(HaveKeyWithValue("content", "Namaste\nAnswer in hindi and do not answer as the user."))
		})
	})

	Describe("Send", func() {
		It("concatenates the text of message output items", func() {
			upstream.Handle(respondJSON(http.StatusOK, `{
				"output": [
					{"type": "reasoning", "content": [{"type": "reasoning_text", "text": "hidden"}]},
					{"type": "message", "role": "assistant", "content": [
						{"type": "output_text", "text": "Hi"},
						{"type": "output_text", "text": " there"}
					]}
				]
			}`))

			reply, err := client.Send(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("Hi there"))
			Expect(upstream.Requests()[0]).To(HaveKeyWithValue("stream", false))
			Expect(client.History()).To(Equal([]llm.Message{
				llm.NewUserMessage("Hello" + directive),
				llm.NewAssistantMessage("Hi there"),
			}))
		})

		It("reads the first choice in the chat dialect", func() {
			config.Dialect = chat.DialectChat
			client = chat.New(config)
			upstream.Handle(respondJSON(http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"Om"},"finish_reason":"stop"}]}`))

			reply, err := client.Send(ctx, "Hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("Om"))
		})

		It("returns a decode error for a malformed body", func() {
			upstream.Handle(respondJSON(http.StatusOK, `{"output": [`))

			_, err := client.Send(ctx, "Hello")
			var derr *llm.DecodeError
			Expect(errors.As(err, &derr)).To(BeTrue())
			Expect(client.History()).To(BeEmpty())
		})

		It("returns a server error for an error envelope", func() {
			upstream.Handle(respondJSON(http.StatusOK, `{"error":{"message":"nope"}}`))

			_, err := client.Send(ctx, "Hello")
			var serr *llm.ServerError
			Expect(errors.As(err, &serr)).To(BeTrue())
			Expect(serr.Message).To(Equal("nope"))
		})

		It("returns a bad response for error statuses", func() {
			upstream.Handle(respondJSON(http.StatusInternalServerError, `{"error":{"message":"oops"}}`))

			_, err := client.Send(ctx, "Hello")
			Expect(err).To(MatchError("bad response: 500, oops"))
			Expect(client.History()).To(BeEmpty())
		})

		It("fails fast without a credential", func() {
			config.APIKey = ""
			client = chat.New(config)

			_, err := client.Send(ctx, "Hello")
			Expect(err).To(MatchError(llm.ErrEmptyCredential))
			Expect(upstream.Requests()).To(BeEmpty())
		})

		It("keeps history at its cap", func() {
			config.MaxHistoryItems = 4
			client = chat.New(config)
			upstream.Handle(respondJSON(http.StatusOK, `{"output":[{"type":"message","content":[{"type":"output_text","text":"ok"}]}]}`))

			for i := 0; i < 3; i++ {
				_, err := client.Send(ctx, fmt.Sprintf("q%d", i))
				Expect(err).NotTo(HaveOccurred())
			}

			turns := client.Turns()
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].User.Content).To(Equal("q1" + directive))
			Expect(turns[1].User.Content).To(Equal("q2" + directive))
		})
	})

	Describe("ClearHistory", func() {
		It("empties the history", func() {
			upstream.Handle(streamFrames(delta("x"), "[DONE]"))
			stream, _ := client.SendStreaming(ctx, "Hello")
			_, err := collect(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.History()).To(HaveLen(2))

			client.ClearHistory()
			Expect(client.History()).To(BeEmpty())
		})
	})
})
