package scaffold

import "fmt"

func renderIndex(id, display string) string {
	return fmt.Sprintf(`import Viewport from './viewport';

export default {
    id: '%s',
    name: '%s',

    start(api) {
        api.add({
            panel: 'main',
            id: '%s-viewport',
            label: '%s',
            component: Viewport,
        });
    },

    active(api) {
        console.log('[%s] Activated');
    },

    inactive(api) {
        console.log('[%s] Deactivated');
    },

    stop(api) {
        console.log('[%s] Stopped');
    }
};
`, id, display, id, display, display, display, display)
}

func renderViewport(id, display string) string {
	return fmt.Sprintf(`import { createSignal, onMount } from 'solid-js';
import { api } from '@/api/bridge';

export default function Viewport() {
    const [message, setMessage] = createSignal('Loading...');

    onMount(async () => {
        try {
            const response = await api('%s/hello');
            const data = await response.json();
            setMessage(data.message);
        } catch (error) {
            setMessage('Error: ' + error.message);
        }
    });

    return (
        <div class="p-4">
            <h1 class="text-xl font-bold mb-4">%s</h1>
            <p class="text-base-content/70">{message()}</p>
        </div>
    );
}
`, id, display)
}

func renderCargoToml(id string) string {
	return fmt.Sprintf(`[package]
name = "%s"
version = "1.0.0"
edition = "2021"

[routes]
"GET /hello" = "handle_hello"

[profile.release]
opt-level = "z"
lto = true
codegen-units = 1
strip = true
`, id)
}

func renderModRS(id, display, structName, author string) string {
	return fmt.Sprintf(`pub mod router;

use api::{Plugin, PluginMetadata};

pub struct %s;

impl Plugin for %s {
    fn metadata(&self) -> PluginMetadata {
        PluginMetadata {
            id: "%s".into(),
            name: "%s".into(),
            version: "1.0.0".into(),
            description: "%s plugin".into(),
            author: "%s".into(),
            dependencies: vec![],
        }
    }
}
`, structName, structName, id, display, display, author)
}

func renderRouterRS(display string) string {
	return fmt.Sprintf(`use api::{HttpRequest, HttpResponse, json, json_response};

pub async fn handle_hello(_req: HttpRequest) -> HttpResponse {
    json_response(&json!({
        "message": "Hello from %s!"
    }))
}
`, display)
}
